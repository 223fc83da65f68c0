// Package errorlog persists structured recording failures for operator diagnosis.
package errorlog

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/critroll/backend/internal/models"
)

// Repository handles recording error persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an error log repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LogRecordingError inserts a failure record. Implements recordings.ErrorSink.
func (r *Repository) LogRecordingError(ctx context.Context, e *models.RecordingError) error {
	const q = `INSERT INTO recording_errors (id, room_id, user_id, recording_id, error_type, error_code, context, provider, multipart_upload_id, provider_file_id)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, e.RoomID, e.UserID, e.RecordingID, e.ErrorType, e.ErrorCode, e.Context, e.Provider, e.MultipartUploadID, e.ProviderFileID).
		Scan(&e.ID, &e.CreatedAt)
}

// ListByRoom returns a room's error records, newest first.
func (r *Repository) ListByRoom(ctx context.Context, roomID uuid.UUID, includeResolved bool) ([]models.RecordingError, error) {
	q := `SELECT id, room_id, user_id, recording_id, error_type, COALESCE(error_code,''), COALESCE(context,''), COALESCE(provider,''), COALESCE(multipart_upload_id,''), COALESCE(provider_file_id,''), resolved, created_at
		FROM recording_errors WHERE room_id = $1`
	if !includeResolved {
		q += ` AND resolved = false`
	}
	q += ` ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.RecordingError
	for rows.Next() {
		var e models.RecordingError
		if err := rows.Scan(&e.ID, &e.RoomID, &e.UserID, &e.RecordingID, &e.ErrorType, &e.ErrorCode, &e.Context, &e.Provider, &e.MultipartUploadID, &e.ProviderFileID, &e.Resolved, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// MarkResolved flips the operator-controlled resolved flag.
func (r *Repository) MarkResolved(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE recording_errors SET resolved = true WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}
