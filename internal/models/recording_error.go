package models

import (
	"time"

	"github.com/google/uuid"
)

// Recording error taxonomy.
const (
	ErrorTypeConfiguration = "configuration"
	ErrorTypeValidation    = "validation"
	ErrorTypeProvider      = "provider"
	ErrorTypeState         = "state"
)

// RecordingError is a structured failure record for operator diagnosis.
// Always attributable to a room; Resolved is operator-toggled only.
type RecordingError struct {
	ID                uuid.UUID  `json:"id"`
	RoomID            uuid.UUID  `json:"room_id"`
	UserID            *uuid.UUID `json:"user_id,omitempty"`
	RecordingID       *uuid.UUID `json:"recording_id,omitempty"`
	ErrorType         string     `json:"error_type"`
	ErrorCode         string     `json:"error_code,omitempty"`
	Context           string     `json:"context,omitempty"` // JSON blob with provider message, part count etc.
	Provider          string     `json:"provider,omitempty"`
	MultipartUploadID string     `json:"multipart_upload_id,omitempty"`
	ProviderFileID    string     `json:"provider_file_id,omitempty"`
	Resolved          bool       `json:"resolved"`
	CreatedAt         time.Time  `json:"created_at"`
}
