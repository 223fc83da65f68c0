package recordings

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/critroll/backend/internal/models"
)

// Repository handles recording persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a recordings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateRecording inserts a new recording row.
func (r *Repository) CreateRecording(ctx context.Context, rec *models.Recording) error {
	const q = `INSERT INTO recordings (id, room_id, user_id, provider, provider_file_id, multipart_upload_id, filename, mime_type, size_bytes, started_at_ms, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, q, rec.ID, rec.RoomID, rec.UserID, rec.Provider, rec.ProviderFileID, rec.MultipartUploadID, rec.Filename, rec.MimeType, rec.SizeBytes, rec.StartedAtMs, rec.Status).
		Scan(&rec.CreatedAt, &rec.UpdatedAt)
}

// GetRecording returns a recording by ID.
func (r *Repository) GetRecording(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	const q = `SELECT id, room_id, user_id, provider, COALESCE(provider_file_id,''), COALESCE(multipart_upload_id,''), filename, mime_type, size_bytes, started_at_ms, COALESCE(ended_at_ms,0), status, COALESCE(location,''), created_at, updated_at
		FROM recordings WHERE id = $1`
	var rec models.Recording
	err := r.pool.QueryRow(ctx, q, id).Scan(&rec.ID, &rec.RoomID, &rec.UserID, &rec.Provider, &rec.ProviderFileID, &rec.MultipartUploadID, &rec.Filename, &rec.MimeType, &rec.SizeBytes, &rec.StartedAtMs, &rec.EndedAtMs, &rec.Status, &rec.Location, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListByRoom returns all recordings for a room, newest first.
func (r *Repository) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Recording, error) {
	const q = `SELECT id, room_id, user_id, provider, COALESCE(provider_file_id,''), COALESCE(multipart_upload_id,''), filename, mime_type, size_bytes, started_at_ms, COALESCE(ended_at_ms,0), status, COALESCE(location,''), created_at, updated_at
		FROM recordings WHERE room_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Recording
	for rows.Next() {
		var rec models.Recording
		if err := rows.Scan(&rec.ID, &rec.RoomID, &rec.UserID, &rec.Provider, &rec.ProviderFileID, &rec.MultipartUploadID, &rec.Filename, &rec.MimeType, &rec.SizeBytes, &rec.StartedAtMs, &rec.EndedAtMs, &rec.Status, &rec.Location, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// UpsertPart records an acknowledged part; resubmitting the same part number
// overwrites the previous etag and size (client retry tolerance).
func (r *Repository) UpsertPart(ctx context.Context, recordingID uuid.UUID, part models.UploadedPart) error {
	const q = `INSERT INTO recording_parts (recording_id, part_number, etag, size_bytes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (recording_id, part_number) DO UPDATE SET etag = EXCLUDED.etag, size_bytes = EXCLUDED.size_bytes`
	_, err := r.pool.Exec(ctx, q, recordingID, part.PartNumber, part.ETag, part.SizeBytes)
	return err
}

// ListParts returns all parts for a recording sorted by part number.
func (r *Repository) ListParts(ctx context.Context, recordingID uuid.UUID) ([]models.UploadedPart, error) {
	const q = `SELECT part_number, etag, size_bytes FROM recording_parts WHERE recording_id = $1 ORDER BY part_number ASC`
	rows, err := r.pool.Query(ctx, q, recordingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.UploadedPart
	for rows.Next() {
		var p models.UploadedPart
		if err := rows.Scan(&p.PartNumber, &p.ETag, &p.SizeBytes); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// UpdateProgress adds a part size to the running total and advances ended_at_ms.
func (r *Repository) UpdateProgress(ctx context.Context, recordingID uuid.UUID, sizeDeltaBytes, endedAtMs int64) error {
	const q = `UPDATE recordings SET size_bytes = size_bytes + $1, ended_at_ms = GREATEST(COALESCE(ended_at_ms,0), $2), updated_at = NOW() WHERE id = $3`
	_, err := r.pool.Exec(ctx, q, sizeDeltaBytes, endedAtMs, recordingID)
	return err
}

// UpdateStatus sets recording status.
func (r *Repository) UpdateStatus(ctx context.Context, recordingID uuid.UUID, status string) error {
	const q = `UPDATE recordings SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, status, recordingID)
	return err
}

// CompleteRecording marks the recording completed with its provider location.
func (r *Repository) CompleteRecording(ctx context.Context, recordingID uuid.UUID, location, etag string) error {
	const q = `UPDATE recordings SET status = $1, location = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.pool.Exec(ctx, q, models.RecordingStatusCompleted, location, recordingID)
	return err
}

// ListStale returns recordings still in recording/finalizing whose last
// activity is older than the cutoff (client crashed without stopping).
func (r *Repository) ListStale(ctx context.Context, olderThanMs int64, limit int) ([]models.Recording, error) {
	const q = `SELECT id, room_id, user_id, provider, COALESCE(provider_file_id,''), COALESCE(multipart_upload_id,''), filename, mime_type, size_bytes, started_at_ms, COALESCE(ended_at_ms,0), status, COALESCE(location,''), created_at, updated_at
		FROM recordings
		WHERE status IN ($1, $2) AND GREATEST(COALESCE(ended_at_ms,0), started_at_ms) < $3
		ORDER BY started_at_ms ASC LIMIT $4`
	rows, err := r.pool.Query(ctx, q, models.RecordingStatusRecording, models.RecordingStatusFinalizing, olderThanMs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Recording
	for rows.Next() {
		var rec models.Recording
		if err := rows.Scan(&rec.ID, &rec.RoomID, &rec.UserID, &rec.Provider, &rec.ProviderFileID, &rec.MultipartUploadID, &rec.Filename, &rec.MimeType, &rec.SizeBytes, &rec.StartedAtMs, &rec.EndedAtMs, &rec.Status, &rec.Location, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// FindActiveByRoomUser returns the participant's in-progress recording, if any.
func (r *Repository) FindActiveByRoomUser(ctx context.Context, roomID, userID uuid.UUID) (*models.Recording, error) {
	const q = `SELECT id, room_id, user_id, provider, COALESCE(provider_file_id,''), COALESCE(multipart_upload_id,''), filename, mime_type, size_bytes, started_at_ms, COALESCE(ended_at_ms,0), status, COALESCE(location,''), created_at, updated_at
		FROM recordings WHERE room_id = $1 AND user_id = $2 AND status = $3 ORDER BY created_at DESC LIMIT 1`
	var rec models.Recording
	err := r.pool.QueryRow(ctx, q, roomID, userID, models.RecordingStatusRecording).
		Scan(&rec.ID, &rec.RoomID, &rec.UserID, &rec.Provider, &rec.ProviderFileID, &rec.MultipartUploadID, &rec.Filename, &rec.MimeType, &rec.SizeBytes, &rec.StartedAtMs, &rec.EndedAtMs, &rec.Status, &rec.Location, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}
