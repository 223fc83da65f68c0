// Package rooms manages live session rooms and their recording settings.
package rooms

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/critroll/backend/internal/models"
)

// Repository handles room persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a rooms repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new room.
func (r *Repository) Create(ctx context.Context, room *models.Room) error {
	const q = `INSERT INTO rooms (id, name, description, gm_id, recording_enabled, storage_provider)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, room.Name, room.Description, room.GMID, room.RecordingEnabled, room.StorageProvider).
		Scan(&room.ID, &room.CreatedAt, &room.UpdatedAt)
}

// GetByID returns a room by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	const q = `SELECT id, name, COALESCE(description,''), gm_id, recording_enabled, COALESCE(storage_provider,''), created_at, updated_at
		FROM rooms WHERE id = $1`
	var room models.Room
	err := r.pool.QueryRow(ctx, q, id).Scan(&room.ID, &room.Name, &room.Description, &room.GMID, &room.RecordingEnabled, &room.StorageProvider, &room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// List returns all rooms, optionally filtered by GM.
func (r *Repository) List(ctx context.Context, gmID *uuid.UUID) ([]models.Room, error) {
	q := `SELECT id, name, COALESCE(description,''), gm_id, recording_enabled, COALESCE(storage_provider,''), created_at, updated_at FROM rooms`
	var args []interface{}
	if gmID != nil {
		q += ` WHERE gm_id = $1`
		args = append(args, *gmID)
	}
	q += ` ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Room
	for rows.Next() {
		var room models.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.Description, &room.GMID, &room.RecordingEnabled, &room.StorageProvider, &room.CreatedAt, &room.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, room)
	}
	return list, rows.Err()
}

// UpdateRecordingSettings sets recording_enabled and storage_provider.
func (r *Repository) UpdateRecordingSettings(ctx context.Context, id uuid.UUID, enabled bool, provider string) error {
	const q = `UPDATE rooms SET recording_enabled = $1, storage_provider = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.pool.Exec(ctx, q, enabled, provider, id)
	return err
}

// Delete removes a room by ID.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM rooms WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}
