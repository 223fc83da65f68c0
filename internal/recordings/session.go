package recordings

import (
	"sort"

	"github.com/critroll/backend/internal/models"
)

// UploadSession tracks acknowledged parts of one multipart upload.
// Pure bookkeeping, no I/O. Resubmitting a part number overwrites the
// previous entry (last write wins) so a client retry after an ambiguous
// timeout cannot corrupt the sequence.
type UploadSession struct {
	parts map[int32]models.UploadedPart
}

// NewUploadSession creates a session, optionally seeded with already
// persisted parts.
func NewUploadSession(existing []models.UploadedPart) *UploadSession {
	s := &UploadSession{parts: make(map[int32]models.UploadedPart, len(existing))}
	for _, p := range existing {
		s.parts[p.PartNumber] = p
	}
	return s
}

// AddPart records an acknowledged part. Parts may arrive in any order.
func (s *UploadSession) AddPart(partNumber int32, etag string, sizeBytes int64) {
	s.parts[partNumber] = models.UploadedPart{
		PartNumber: partNumber,
		ETag:       etag,
		SizeBytes:  sizeBytes,
	}
}

// PartsForCompletion returns parts sorted ascending by part number, as
// providers require at completion time. Returns nil when no parts were
// recorded; callers treat that as "nothing to complete".
func (s *UploadSession) PartsForCompletion() []models.UploadedPart {
	if len(s.parts) == 0 {
		return nil
	}
	out := make([]models.UploadedPart, 0, len(s.parts))
	for _, p := range s.parts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartNumber < out[j].PartNumber })
	return out
}

// TotalBytes sums the recorded part sizes.
func (s *UploadSession) TotalBytes() int64 {
	var total int64
	for _, p := range s.parts {
		total += p.SizeBytes
	}
	return total
}

// Len returns the number of distinct parts recorded.
func (s *UploadSession) Len() int { return len(s.parts) }
