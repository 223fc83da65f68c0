package speech

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Chunk is a flushed batch of finalized fragments.
type Chunk struct {
	Text        string
	Confidence  float64
	StartedAtMs int64
	EndedAtMs   int64
	Provider    string
	Language    string
}

// Sink receives flushed chunks. Delivery is at-least-once: a sink error
// leaves the fragments queued, so the same text may be submitted again on
// the next flush.
type Sink interface {
	SubmitChunk(ctx context.Context, chunk Chunk) error
}

// TranscriptBatcher accumulates finalized fragments and flushes them on a
// fixed timer or on explicit stop.
type TranscriptBatcher struct {
	mu        sync.Mutex
	fragments []Fragment
	startMs   int64

	sink     Sink
	provider string
	language string
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewTranscriptBatcher creates a batcher flushing to sink every interval.
func NewTranscriptBatcher(sink Sink, provider, language string, interval time.Duration, logger *zap.Logger) *TranscriptBatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &TranscriptBatcher{
		sink:     sink,
		provider: provider,
		language: language,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Append adds a finalized fragment to the current chunk. Interim results
// must not be appended.
func (b *TranscriptBatcher) Append(f Fragment) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.fragments) == 0 {
		b.startMs = f.TimestampMs
		if b.startMs == 0 {
			b.startMs = b.now().UnixMilli()
		}
	}
	b.fragments = append(b.fragments, f)
}

// Pending returns the number of fragments awaiting flush.
func (b *TranscriptBatcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fragments)
}

// Flush submits the current chunk. Returns true if there was nothing to send
// or the sink accepted it; on sink failure the fragments are retained for the
// next attempt and Flush returns false.
func (b *TranscriptBatcher) Flush(ctx context.Context) bool {
	b.mu.Lock()
	if len(b.fragments) == 0 {
		b.mu.Unlock()
		return true
	}
	frags := make([]Fragment, len(b.fragments))
	copy(frags, b.fragments)
	startMs := b.startMs
	b.mu.Unlock()

	texts := make([]string, 0, len(frags))
	var confSum float64
	endMs := startMs
	for _, f := range frags {
		texts = append(texts, f.Text)
		confSum += f.Confidence
		if f.TimestampMs > endMs {
			endMs = f.TimestampMs
		}
	}
	chunk := Chunk{
		Text:        strings.Join(texts, " "),
		Confidence:  confSum / float64(len(frags)),
		StartedAtMs: startMs,
		EndedAtMs:   endMs,
		Provider:    b.provider,
		Language:    b.language,
	}

	if err := b.sink.SubmitChunk(ctx, chunk); err != nil {
		b.logger.Warn("transcript flush failed, retaining fragments",
			zap.Error(err), zap.Int("fragments", len(frags)))
		return false
	}

	b.mu.Lock()
	// Drop only what was sent; fragments appended during the submit stay.
	b.fragments = b.fragments[len(frags):]
	if len(b.fragments) > 0 {
		b.startMs = b.fragments[0].TimestampMs
	} else {
		b.startMs = b.now().UnixMilli()
	}
	b.mu.Unlock()
	return true
}

// Run flushes on the timer until ctx is done, then performs a final flush.
func (b *TranscriptBatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			b.Flush(flushCtx)
			cancel()
			return
		case <-ticker.C:
			b.Flush(ctx)
		}
	}
}
