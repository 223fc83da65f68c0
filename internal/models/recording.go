package models

import (
	"time"

	"github.com/google/uuid"
)

// Storage providers a room may record to.
const (
	ProviderWasabi      = "wasabi"
	ProviderGoogleDrive = "google_drive"
)

// Recording lifecycle states. Completed and failed are terminal.
const (
	RecordingStatusRecording  = "recording"
	RecordingStatusFinalizing = "finalizing"
	RecordingStatusCompleted  = "completed"
	RecordingStatusFailed     = "failed"
)

// Recording is one media capture for a room, uploaded in parts directly to the
// room's storage provider. ProviderFileID and MultipartUploadID are either both
// empty or both set once a provider session exists.
type Recording struct {
	ID                uuid.UUID `json:"id"`
	RoomID            uuid.UUID `json:"room_id"`
	UserID            uuid.UUID `json:"user_id"`
	Provider          string    `json:"provider"`
	ProviderFileID    string    `json:"provider_file_id,omitempty"`
	MultipartUploadID string    `json:"multipart_upload_id,omitempty"`
	Filename          string    `json:"filename"`
	MimeType          string    `json:"mime_type"`
	SizeBytes         int64     `json:"size_bytes"`
	StartedAtMs       int64     `json:"started_at_ms"`
	EndedAtMs         int64     `json:"ended_at_ms,omitempty"`
	Status            string    `json:"status"`
	Location          string    `json:"location,omitempty"` // provider URL once completed
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// UploadedPart is one acknowledged chunk of a multipart upload.
// Part numbers are 1-based and unique per recording; the set must be
// contiguous from 1 for provider completion to succeed.
type UploadedPart struct {
	PartNumber int32  `json:"part_number"`
	ETag       string `json:"etag"`
	SizeBytes  int64  `json:"size_bytes"`
}
