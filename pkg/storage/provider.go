// Package storage implements the pluggable recording storage providers:
// Wasabi (S3-compatible multipart API) and Google Drive (resumable sessions).
// Adapters are stateless; all persistent upload state lives on the Recording.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Provider kinds. Matches models.ProviderWasabi / models.ProviderGoogleDrive.
const (
	KindWasabi      = "wasabi"
	KindGoogleDrive = "google_drive"
)

// Size ceilings per provider.
const (
	MaxWasabiObjectBytes = 100 * 1024 * 1024      // 100MB direct upload
	MaxDriveObjectBytes  = 2 * 1024 * 1024 * 1024 // 2GB resumable session
	// MaxPartCount is the S3 multipart part number ceiling.
	MaxPartCount = 10000
	// MaxFilenameLen bounds uploaded filenames.
	MaxFilenameLen = 255
)

// allowedContentTypePrefixes is the recording MIME allow-list. Prefix-matched
// so codec suffixes like video/webm;codecs=vp9 pass.
var allowedContentTypePrefixes = []string{
	"video/webm",
	"audio/webm",
	"video/mp4",
	"audio/mp4",
	"video/quicktime",
}

// BeginUploadInput describes a new upload session request.
type BeginUploadInput struct {
	RoomID      string
	RecordingID string
	Filename    string
	ContentType string
	SizeBytes   int64 // declared size; ceiling-checked per provider
	Metadata    map[string]string
}

// UploadTarget is what the client needs to stream parts directly to the provider.
type UploadTarget struct {
	Provider string `json:"provider"`
	// FileID is the provider-native file identifier (S3 object key / Drive file ID).
	FileID string `json:"file_id"`
	// UploadID is the multipart upload ID (S3) or resumable session URI (Drive).
	UploadID string `json:"upload_id"`
	// UploadURL is set for Drive: the session URI accepting byte-range PUTs.
	// S3 clients request per-part presigned URLs instead.
	UploadURL string `json:"upload_url,omitempty"`
}

// CompletedPart references one uploaded part at completion time.
type CompletedPart struct {
	PartNumber int32
	ETag       string
}

// CompleteResult is the provider's confirmation of a finished upload.
type CompleteResult struct {
	Location  string
	ETag      string
	SizeBytes int64
}

// Provider is the uniform interface over recording storage backends.
type Provider interface {
	Kind() string
	// BeginUpload validates the request and opens a provider upload session.
	BeginUpload(ctx context.Context, in BeginUploadInput) (*UploadTarget, error)
	// PartUploadURL returns the URL the client PUTs part partNumber to.
	// For Drive this is the session URI regardless of part number.
	PartUploadURL(ctx context.Context, fileID, uploadID string, partNumber int32) (string, error)
	// CompleteUpload finishes the upload. declaredSize is the byte total the
	// lifecycle accumulated from part acknowledgements; Drive verifies it
	// against provider metadata.
	CompleteUpload(ctx context.Context, fileID, uploadID string, declaredSize int64, parts []CompletedPart) (*CompleteResult, error)
	// DownloadURL returns a time-limited download link. Drive ignores expires
	// (link validity is provider-controlled).
	DownloadURL(ctx context.Context, fileID string, expires time.Duration) (string, error)
}

// ValidationError rejects malformed upload input before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProviderError wraps a failure reported by the storage provider itself.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidateUploadInput applies the shared filename / content-type / size rules.
// maxBytes is the provider-specific ceiling.
func ValidateUploadInput(in BeginUploadInput, maxBytes int64) error {
	name := in.Filename
	if name == "" || len(name) > MaxFilenameLen {
		return &ValidationError{Field: "filename", Reason: "must be 1-255 characters"}
	}
	if strings.ContainsAny(name, "/\\") {
		return &ValidationError{Field: "filename", Reason: "must not contain path separators"}
	}
	ct := strings.ToLower(in.ContentType)
	ok := false
	for _, p := range allowedContentTypePrefixes {
		if strings.HasPrefix(ct, p) {
			ok = true
			break
		}
	}
	if !ok {
		return &ValidationError{Field: "content_type", Reason: fmt.Sprintf("%q not allowed", in.ContentType)}
	}
	if in.SizeBytes < 0 {
		return &ValidationError{Field: "size_bytes", Reason: "must be non-negative"}
	}
	if in.SizeBytes > maxBytes {
		return &ValidationError{Field: "size_bytes", Reason: fmt.Sprintf("exceeds provider limit of %d bytes", maxBytes)}
	}
	return nil
}

// ValidateCompletedParts checks the S3 completion rules: at least one part,
// non-empty etags, numbers contiguous from 1, within the part ceiling.
// The input must already be sorted ascending by part number.
func ValidateCompletedParts(parts []CompletedPart) error {
	if len(parts) == 0 {
		return &ValidationError{Field: "parts", Reason: "no parts recorded"}
	}
	if len(parts) > MaxPartCount {
		return &ValidationError{Field: "parts", Reason: fmt.Sprintf("more than %d parts", MaxPartCount)}
	}
	for i, p := range parts {
		if p.PartNumber != int32(i+1) {
			return &ValidationError{Field: "parts", Reason: fmt.Sprintf("part numbers not contiguous from 1 (got %d at position %d)", p.PartNumber, i+1)}
		}
		if p.ETag == "" {
			return &ValidationError{Field: "parts", Reason: fmt.Sprintf("part %d has empty etag", p.PartNumber)}
		}
	}
	return nil
}

// SortParts orders parts ascending by part number in place.
func SortParts(parts []CompletedPart) {
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })
}
