package recordings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/critroll/backend/internal/models"
	"github.com/critroll/backend/pkg/storage"
)

// ConfigurationError means the room is not set up for the attempted
// operation. Not retried; surfaced to the caller.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string { return "room not configured: " + e.Reason }

// ErrNotRecording is returned by RecordPart when the recording is not in
// the recording state.
var ErrNotRecording = errors.New("recording is not accepting parts")

// Store is the persistence boundary the lifecycle drives.
type Store interface {
	CreateRecording(ctx context.Context, rec *models.Recording) error
	GetRecording(ctx context.Context, id uuid.UUID) (*models.Recording, error)
	UpsertPart(ctx context.Context, recordingID uuid.UUID, part models.UploadedPart) error
	ListParts(ctx context.Context, recordingID uuid.UUID) ([]models.UploadedPart, error)
	UpdateProgress(ctx context.Context, recordingID uuid.UUID, sizeDeltaBytes, endedAtMs int64) error
	UpdateStatus(ctx context.Context, recordingID uuid.UUID, status string) error
	CompleteRecording(ctx context.Context, recordingID uuid.UUID, location, etag string) error
}

// ErrorSink records structured recording failures for operator diagnosis.
type ErrorSink interface {
	LogRecordingError(ctx context.Context, e *models.RecordingError) error
}

// Lifecycle is the state machine governing a recording from session start
// to completed or failed. Transitions: recording -> finalizing -> completed,
// with recording/finalizing -> failed as escapes. Terminal states are final.
type Lifecycle struct {
	store     Store
	providers map[string]storage.Provider
	errors    ErrorSink
	logger    *zap.Logger
	now       func() time.Time
}

// NewLifecycle creates a recording lifecycle manager.
func NewLifecycle(store Store, providers map[string]storage.Provider, errors ErrorSink, logger *zap.Logger) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifecycle{
		store:     store,
		providers: providers,
		errors:    errors,
		logger:    logger,
		now:       time.Now,
	}
}

// Provider returns the configured storage provider for a kind, if any.
func (l *Lifecycle) Provider(kind string) (storage.Provider, bool) {
	p, ok := l.providers[kind]
	return p, ok
}

// Start begins a capture session for a room participant. The room must have
// recording enabled and a configured storage provider; violations return
// ConfigurationError and no Recording is created. Validation failures from
// the provider adapter propagate unchanged; provider failures are logged
// to the error sink before returning.
func (l *Lifecycle) Start(ctx context.Context, room *models.Room, userID uuid.UUID, filename, mimeType string, sizeBytes int64) (*models.Recording, *storage.UploadTarget, error) {
	if !room.RecordingEnabled {
		return nil, nil, &ConfigurationError{Reason: "recording is disabled for this room"}
	}
	provider, ok := l.providers[room.StorageProvider]
	if !ok {
		return nil, nil, &ConfigurationError{Reason: fmt.Sprintf("no storage provider configured (got %q)", room.StorageProvider)}
	}

	recordingID := uuid.New()
	target, err := provider.BeginUpload(ctx, storage.BeginUploadInput{
		RoomID:      room.ID.String(),
		RecordingID: recordingID.String(),
		Filename:    filename,
		ContentType: mimeType,
		SizeBytes:   sizeBytes,
		Metadata:    map[string]string{"room_id": room.ID.String(), "user_id": userID.String()},
	})
	if err != nil {
		if !storage.IsValidation(err) {
			l.logError(ctx, &models.RecordingError{
				RoomID:    room.ID,
				UserID:    &userID,
				ErrorType: models.ErrorTypeProvider,
				Provider:  room.StorageProvider,
				Context:   errContext(map[string]interface{}{"op": "begin_upload", "error": err.Error()}),
			})
		}
		return nil, nil, err
	}

	rec := &models.Recording{
		ID:                recordingID,
		RoomID:            room.ID,
		UserID:            userID,
		Provider:          room.StorageProvider,
		ProviderFileID:    target.FileID,
		MultipartUploadID: target.UploadID,
		Filename:          filename,
		MimeType:          mimeType,
		SizeBytes:         0,
		StartedAtMs:       l.now().UnixMilli(),
		Status:            models.RecordingStatusRecording,
	}
	if err := l.store.CreateRecording(ctx, rec); err != nil {
		return nil, nil, fmt.Errorf("create recording: %w", err)
	}
	l.logger.Info("recording started",
		zap.String("recording_id", rec.ID.String()),
		zap.String("room_id", room.ID.String()),
		zap.String("provider", rec.Provider))
	return rec, target, nil
}

// RecordPart acknowledges one uploaded chunk. Valid only while the recording
// is in the recording state. Out-of-order submission is fine; contiguity is
// checked at finalize time only. Resubmitting a part number overwrites the
// stored etag/size but still adds the new size to the running total, so
// clients must not re-ack a part they already acked with a different size.
func (l *Lifecycle) RecordPart(ctx context.Context, recordingID uuid.UUID, partNumber int32, etag string, sizeBytes, endedAtMs int64) error {
	rec, err := l.store.GetRecording(ctx, recordingID)
	if err != nil {
		return fmt.Errorf("load recording: %w", err)
	}
	if rec.Status != models.RecordingStatusRecording {
		return ErrNotRecording
	}
	if partNumber < 1 || partNumber > storage.MaxPartCount {
		return &storage.ValidationError{Field: "part_number", Reason: fmt.Sprintf("must be in [1,%d]", storage.MaxPartCount)}
	}
	if etag == "" {
		return &storage.ValidationError{Field: "etag", Reason: "must not be empty"}
	}
	part := models.UploadedPart{PartNumber: partNumber, ETag: etag, SizeBytes: sizeBytes}
	if err := l.store.UpsertPart(ctx, recordingID, part); err != nil {
		return fmt.Errorf("record part: %w", err)
	}
	if err := l.store.UpdateProgress(ctx, recordingID, sizeBytes, endedAtMs); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// Finalize completes the multipart upload with the provider. Returns true on
// success. Returns false without mutating state when the recording is not
// ready (wrong state, no upload session, zero parts) — an expected condition,
// not an error. On provider failure it logs a RecordingError, transitions to
// failed, and returns false; retry is an external decision. Repeated calls
// on a completed or failed recording are no-ops returning false.
func (l *Lifecycle) Finalize(ctx context.Context, recordingID uuid.UUID) bool {
	rec, err := l.store.GetRecording(ctx, recordingID)
	if err != nil {
		l.logger.Error("finalize: load recording failed", zap.Error(err), zap.String("recording_id", recordingID.String()))
		return false
	}
	if rec.Status != models.RecordingStatusRecording && rec.Status != models.RecordingStatusFinalizing {
		return false
	}
	if rec.MultipartUploadID == "" || rec.ProviderFileID == "" {
		return false
	}
	provider, ok := l.providers[rec.Provider]
	if !ok {
		return false
	}

	stored, err := l.store.ListParts(ctx, recordingID)
	if err != nil {
		l.logger.Error("finalize: list parts failed", zap.Error(err), zap.String("recording_id", recordingID.String()))
		return false
	}
	session := NewUploadSession(stored)
	parts := session.PartsForCompletion()
	if len(parts) == 0 {
		return false
	}

	if err := l.store.UpdateStatus(ctx, recordingID, models.RecordingStatusFinalizing); err != nil {
		l.logger.Error("finalize: status update failed", zap.Error(err), zap.String("recording_id", recordingID.String()))
		return false
	}

	completed := make([]storage.CompletedPart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, storage.CompletedPart{PartNumber: p.PartNumber, ETag: p.ETag})
	}
	result, err := provider.CompleteUpload(ctx, rec.ProviderFileID, rec.MultipartUploadID, rec.SizeBytes, completed)
	if err != nil {
		l.logError(ctx, &models.RecordingError{
			RoomID:            rec.RoomID,
			UserID:            &rec.UserID,
			RecordingID:       &rec.ID,
			ErrorType:         models.ErrorTypeProvider,
			Provider:          rec.Provider,
			MultipartUploadID: rec.MultipartUploadID,
			ProviderFileID:    rec.ProviderFileID,
			Context: errContext(map[string]interface{}{
				"op":         "complete_upload",
				"part_count": len(parts),
				"error":      err.Error(),
			}),
		})
		if uerr := l.store.UpdateStatus(ctx, recordingID, models.RecordingStatusFailed); uerr != nil {
			l.logger.Error("finalize: mark failed", zap.Error(uerr), zap.String("recording_id", recordingID.String()))
		}
		l.logger.Warn("recording finalization failed",
			zap.String("recording_id", recordingID.String()),
			zap.String("provider", rec.Provider),
			zap.Error(err))
		return false
	}

	if err := l.store.CompleteRecording(ctx, recordingID, result.Location, result.ETag); err != nil {
		l.logger.Error("finalize: persist completion failed", zap.Error(err), zap.String("recording_id", recordingID.String()))
		return false
	}
	l.logger.Info("recording completed",
		zap.String("recording_id", recordingID.String()),
		zap.Int("parts", len(parts)),
		zap.Int64("size_bytes", rec.SizeBytes))
	return true
}

func (l *Lifecycle) logError(ctx context.Context, e *models.RecordingError) {
	if l.errors == nil {
		return
	}
	if err := l.errors.LogRecordingError(ctx, e); err != nil {
		l.logger.Error("write recording error failed", zap.Error(err))
	}
}

func errContext(fields map[string]interface{}) string {
	b, err := json.Marshal(fields)
	if err != nil {
		return ""
	}
	return string(b)
}
