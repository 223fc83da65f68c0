// Package transcripts persists speech-to-text chunks for room sessions.
package transcripts

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/critroll/backend/internal/models"
)

// Repository handles transcript persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a transcripts repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a transcript chunk.
func (r *Repository) Create(ctx context.Context, t *models.TranscriptChunk) error {
	const q = `INSERT INTO transcripts (id, room_id, user_id, character_name, started_at_ms, ended_at_ms, text, language, confidence, provider)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, t.RoomID, t.UserID, t.Character, t.StartedAtMs, t.EndedAtMs, t.Text, t.Language, t.Confidence, t.Provider).
		Scan(&t.ID, &t.CreatedAt)
}

// ListByRoom returns a room's transcript chunks in speech order.
func (r *Repository) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.TranscriptChunk, error) {
	const q = `SELECT id, room_id, user_id, COALESCE(character_name,''), started_at_ms, ended_at_ms, text, COALESCE(language,''), confidence, COALESCE(provider,''), created_at
		FROM transcripts WHERE room_id = $1 ORDER BY started_at_ms ASC, created_at ASC`
	rows, err := r.pool.Query(ctx, q, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.TranscriptChunk
	for rows.Next() {
		var t models.TranscriptChunk
		if err := rows.Scan(&t.ID, &t.RoomID, &t.UserID, &t.Character, &t.StartedAtMs, &t.EndedAtMs, &t.Text, &t.Language, &t.Confidence, &t.Provider, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// CombinedText renders a room's transcript as one plain-text document,
// one line per chunk with speaker attribution. Used for session archives.
func (r *Repository) CombinedText(ctx context.Context, roomID uuid.UUID) (string, error) {
	chunks, err := r.ListByRoom(ctx, roomID)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, t := range chunks {
		speaker := t.Character
		if speaker == "" {
			speaker = t.UserID.String()
		}
		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	return b.String(), nil
}
