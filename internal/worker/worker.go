// Package worker runs background jobs: finalize retries for abandoned
// recordings and transcript archival to object storage.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/critroll/backend/internal/models"
	"github.com/critroll/backend/internal/recordings"
	"github.com/critroll/backend/internal/transcripts"
	"github.com/critroll/backend/pkg/queue"
	"github.com/critroll/backend/pkg/storage"
)

// StaleSweepInterval is how often the sweeper looks for abandoned recordings.
const StaleSweepInterval = 5 * time.Minute

// StaleAfter is how long a recording may sit without part activity before the
// sweeper assumes the client is gone and enqueues a finalize attempt.
const StaleAfter = 30 * time.Minute

// Processor consumes queued jobs and runs the stale-recording sweep.
type Processor struct {
	lifecycle *recordings.Lifecycle
	recRepo   *recordings.Repository
	trRepo    *transcripts.Repository
	wasabi    *storage.Wasabi
	queue     *queue.Queue
	logger    *zap.Logger
}

// NewProcessor creates a job processor.
func NewProcessor(lifecycle *recordings.Lifecycle, recRepo *recordings.Repository, trRepo *transcripts.Repository, wasabi *storage.Wasabi, q *queue.Queue, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		lifecycle: lifecycle,
		recRepo:   recRepo,
		trRepo:    trRepo,
		wasabi:    wasabi,
		queue:     q,
		logger:    logger,
	}
}

// Process executes one job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeFinalizeRecording:
		return p.processFinalize(ctx, job)
	case queue.JobTypeTranscriptArchive:
		return p.processArchive(ctx, job)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (p *Processor) processFinalize(ctx context.Context, job *queue.Job) error {
	var payload queue.FinalizeRecordingPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	rec, err := p.recRepo.GetRecording(ctx, payload.RecordingID)
	if err != nil {
		return fmt.Errorf("recording not found: %s", payload.RecordingID)
	}
	switch rec.Status {
	case models.RecordingStatusCompleted:
		p.logger.Info("recording already completed", zap.String("recording_id", rec.ID.String()))
		return nil
	case models.RecordingStatusFailed:
		// Terminal. Re-finalizing a failed recording is an operator decision,
		// not a queue retry.
		p.logger.Warn("recording already failed, skipping", zap.String("recording_id", rec.ID.String()))
		return nil
	}

	if p.lifecycle.Finalize(ctx, rec.ID) {
		p.logger.Info("stale recording finalized",
			zap.String("recording_id", rec.ID.String()),
			zap.String("room_id", rec.RoomID.String()))
		return nil
	}

	after, err := p.recRepo.GetRecording(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("reload recording: %w", err)
	}
	if after.Status == models.RecordingStatusFailed {
		// Finalization attempted and rejected by the provider; the error is
		// already logged. Nothing left for the queue to do.
		return nil
	}
	return fmt.Errorf("recording %s not ready to finalize", rec.ID)
}

func (p *Processor) processArchive(ctx context.Context, job *queue.Job) error {
	var payload queue.TranscriptArchivePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	text, err := p.trRepo.CombinedText(ctx, payload.RoomID)
	if err != nil {
		return fmt.Errorf("render transcript: %w", err)
	}
	if text == "" {
		p.logger.Info("no transcript to archive", zap.String("room_id", payload.RoomID.String()))
		return nil
	}

	name := fmt.Sprintf("transcript-%s.txt", time.Now().UTC().Format("20060102-150405"))
	key := storage.ArchiveKey(payload.RoomID.String(), name)
	location, err := p.wasabi.UploadObject(ctx, key, "text/plain; charset=utf-8", strings.NewReader(text))
	if err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}

	p.logger.Info("transcript archived",
		zap.String("room_id", payload.RoomID.String()),
		zap.String("location", location))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopping")
			return
		default:
		}

		job, key, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job, key); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}

// RunStaleSweep periodically enqueues finalize jobs for recordings whose
// clients stopped sending parts without calling stop.
func (p *Processor) RunStaleSweep(ctx context.Context) {
	ticker := time.NewTicker(StaleSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweepOnce(ctx)
		}
	}
}

func (p *Processor) sweepOnce(ctx context.Context) {
	cutoff := time.Now().Add(-StaleAfter).UnixMilli()
	stale, err := p.recRepo.ListStale(ctx, cutoff, 100)
	if err != nil {
		p.logger.Warn("stale sweep query failed", zap.Error(err))
		return
	}
	for _, rec := range stale {
		err := p.queue.EnqueueFinalizeRecording(ctx, queue.FinalizeRecordingPayload{
			RecordingID: rec.ID,
			RoomID:      rec.RoomID,
		})
		if err != nil {
			p.logger.Warn("enqueue stale finalize failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
			continue
		}
		p.logger.Info("stale recording queued for finalize",
			zap.String("recording_id", rec.ID.String()),
			zap.String("status", rec.Status))
	}
}
