package models

import (
	"time"

	"github.com/google/uuid"
)

// Room is a live tabletop session space (video/audio handled by an external provider).
type Room struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	GMID             uuid.UUID `json:"gm_id"`
	RecordingEnabled bool      `json:"recording_enabled"`
	StorageProvider  string    `json:"storage_provider,omitempty"` // "wasabi" or "google_drive"; empty = not configured
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
