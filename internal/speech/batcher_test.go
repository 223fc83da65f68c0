package speech

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	chunks []Chunk
	err    error
}

func (s *captureSink) SubmitChunk(_ context.Context, chunk Chunk) error {
	if s.err != nil {
		return s.err
	}
	s.chunks = append(s.chunks, chunk)
	return nil
}

func TestFlushCombinesFragments(t *testing.T) {
	sink := &captureSink{}
	b := NewTranscriptBatcher(sink, "cloud", "en-US", 10*time.Second, nil)

	b.Append(Fragment{Text: "roll for", Confidence: 0.8, TimestampMs: 100})
	b.Append(Fragment{Text: "initiative", Confidence: 1.0, TimestampMs: 200})

	require.True(t, b.Flush(context.Background()))
	require.Len(t, sink.chunks, 1)

	chunk := sink.chunks[0]
	assert.Equal(t, "roll for initiative", chunk.Text)
	assert.InDelta(t, 0.9, chunk.Confidence, 1e-9)
	assert.Equal(t, int64(100), chunk.StartedAtMs)
	assert.Equal(t, int64(200), chunk.EndedAtMs)
	assert.Equal(t, "cloud", chunk.Provider)
	assert.Equal(t, "en-US", chunk.Language)
	assert.Equal(t, 0, b.Pending())
}

func TestFlushRetainsFragmentsOnSinkFailure(t *testing.T) {
	sink := &captureSink{err: errors.New("connection refused")}
	b := NewTranscriptBatcher(sink, "native", "", 10*time.Second, nil)

	b.Append(Fragment{Text: "the dragon attacks", Confidence: 0.9, TimestampMs: 50})

	assert.False(t, b.Flush(context.Background()))
	assert.Equal(t, 1, b.Pending())

	// Next tick succeeds and delivers the retained fragment.
	sink.err = nil
	require.True(t, b.Flush(context.Background()))
	require.Len(t, sink.chunks, 1)
	assert.Equal(t, "the dragon attacks", sink.chunks[0].Text)
	assert.Equal(t, 0, b.Pending())
}

func TestFlushEmptyIsNoop(t *testing.T) {
	sink := &captureSink{}
	b := NewTranscriptBatcher(sink, "native", "", 10*time.Second, nil)

	assert.True(t, b.Flush(context.Background()))
	assert.Empty(t, sink.chunks)
}

func TestAppendDuringFlushIsKept(t *testing.T) {
	sink := &captureSink{}
	b := NewTranscriptBatcher(sink, "native", "", 10*time.Second, nil)

	b.Append(Fragment{Text: "first", Confidence: 1, TimestampMs: 10})
	require.True(t, b.Flush(context.Background()))

	b.Append(Fragment{Text: "second", Confidence: 1, TimestampMs: 20})
	assert.Equal(t, 1, b.Pending())
	require.True(t, b.Flush(context.Background()))
	require.Len(t, sink.chunks, 2)
	assert.Equal(t, "second", sink.chunks[1].Text)
}
