package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateUploadInput(t *testing.T) {
	base := BeginUploadInput{
		Filename:    "session-recording.webm",
		ContentType: "video/webm",
		SizeBytes:   1024,
	}

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, ValidateUploadInput(base, MaxWasabiObjectBytes))
	})

	t.Run("codec suffix is tolerated", func(t *testing.T) {
		in := base
		in.ContentType = "video/webm;codecs=vp9,opus"
		require.NoError(t, ValidateUploadInput(in, MaxWasabiObjectBytes))
	})

	t.Run("empty filename", func(t *testing.T) {
		in := base
		in.Filename = ""
		err := ValidateUploadInput(in, MaxWasabiObjectBytes)
		assert.True(t, IsValidation(err))
	})

	t.Run("path separator in filename", func(t *testing.T) {
		in := base
		in.Filename = "../../etc/passwd"
		err := ValidateUploadInput(in, MaxWasabiObjectBytes)
		assert.True(t, IsValidation(err))
	})

	t.Run("disallowed content type", func(t *testing.T) {
		in := base
		in.ContentType = "application/x-msdownload"
		err := ValidateUploadInput(in, MaxWasabiObjectBytes)
		assert.True(t, IsValidation(err))
	})

	t.Run("over size ceiling", func(t *testing.T) {
		in := base
		in.SizeBytes = MaxWasabiObjectBytes + 1
		err := ValidateUploadInput(in, MaxWasabiObjectBytes)
		assert.True(t, IsValidation(err))
	})

	t.Run("drive ceiling is larger", func(t *testing.T) {
		in := base
		in.SizeBytes = MaxWasabiObjectBytes + 1
		require.NoError(t, ValidateUploadInput(in, MaxDriveObjectBytes))
	})
}

func TestValidateCompletedParts(t *testing.T) {
	t.Run("contiguous from one succeeds", func(t *testing.T) {
		parts := []CompletedPart{
			{PartNumber: 1, ETag: "a"},
			{PartNumber: 2, ETag: "b"},
			{PartNumber: 3, ETag: "c"},
		}
		require.NoError(t, ValidateCompletedParts(parts))
	})

	t.Run("gap is rejected", func(t *testing.T) {
		parts := []CompletedPart{
			{PartNumber: 1, ETag: "a"},
			{PartNumber: 2, ETag: "b"},
			{PartNumber: 4, ETag: "d"},
		}
		err := ValidateCompletedParts(parts)
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})

	t.Run("not starting at one is rejected", func(t *testing.T) {
		parts := []CompletedPart{
			{PartNumber: 2, ETag: "b"},
			{PartNumber: 3, ETag: "c"},
		}
		require.Error(t, ValidateCompletedParts(parts))
	})

	t.Run("empty etag is rejected", func(t *testing.T) {
		parts := []CompletedPart{
			{PartNumber: 1, ETag: ""},
		}
		require.Error(t, ValidateCompletedParts(parts))
	})

	t.Run("empty list is rejected", func(t *testing.T) {
		require.Error(t, ValidateCompletedParts(nil))
	})
}

func TestSortParts(t *testing.T) {
	parts := []CompletedPart{
		{PartNumber: 3, ETag: "c"},
		{PartNumber: 1, ETag: "a"},
		{PartNumber: 2, ETag: "b"},
	}
	SortParts(parts)
	require.NoError(t, ValidateCompletedParts(parts))
	assert.Equal(t, int32(1), parts[0].PartNumber)
	assert.Equal(t, int32(3), parts[2].PartNumber)
}
