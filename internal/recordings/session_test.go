package recordings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/critroll/backend/internal/models"
)

func TestUploadSessionOrdering(t *testing.T) {
	s := NewUploadSession(nil)
	s.AddPart(3, "etag3", 300)
	s.AddPart(1, "etag1", 100)
	s.AddPart(4, "etag4", 400)
	s.AddPart(2, "etag2", 200)

	parts := s.PartsForCompletion()
	require.Len(t, parts, 4)
	for i, p := range parts {
		assert.Equal(t, int32(i+1), p.PartNumber, "parts must be sorted ascending")
	}
}

func TestUploadSessionOverwriteByPartNumber(t *testing.T) {
	s := NewUploadSession(nil)
	s.AddPart(1, "first-attempt", 100)
	s.AddPart(1, "retry", 100)

	parts := s.PartsForCompletion()
	require.Len(t, parts, 1)
	assert.Equal(t, "retry", parts[0].ETag, "last write wins on resubmission")
}

func TestUploadSessionEmpty(t *testing.T) {
	s := NewUploadSession(nil)
	assert.Nil(t, s.PartsForCompletion())
	assert.Zero(t, s.TotalBytes())
	assert.Zero(t, s.Len())
}

func TestUploadSessionSeededFromStore(t *testing.T) {
	existing := []models.UploadedPart{
		{PartNumber: 2, ETag: "b", SizeBytes: 20},
		{PartNumber: 1, ETag: "a", SizeBytes: 10},
	}
	s := NewUploadSession(existing)
	s.AddPart(3, "c", 30)

	parts := s.PartsForCompletion()
	require.Len(t, parts, 3)
	assert.Equal(t, int64(60), s.TotalBytes())
	assert.Equal(t, "a", parts[0].ETag)
	assert.Equal(t, "c", parts[2].ETag)
}
