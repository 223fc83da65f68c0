package models

import (
	"time"

	"github.com/google/uuid"
)

// TranscriptChunk is a batch of finalized speech fragments attributed to a
// room participant. Delivery is at-least-once; consumers de-duplicate by
// (room_id, user_id, started_at_ms) when needed.
type TranscriptChunk struct {
	ID          uuid.UUID `json:"id"`
	RoomID      uuid.UUID `json:"room_id"`
	UserID      uuid.UUID `json:"user_id"`
	Character   string    `json:"character,omitempty"` // in-game attribution
	StartedAtMs int64     `json:"started_at_ms"`
	EndedAtMs   int64     `json:"ended_at_ms"`
	Text        string    `json:"text"`
	Language    string    `json:"language,omitempty"`
	Confidence  float64   `json:"confidence"`
	Provider    string    `json:"provider,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
