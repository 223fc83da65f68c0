package recordings

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/critroll/backend/internal/models"
	"github.com/critroll/backend/pkg/storage"
)

// memStore is an in-memory Store for lifecycle tests.
type memStore struct {
	recordings map[uuid.UUID]*models.Recording
	parts      map[uuid.UUID]map[int32]models.UploadedPart
}

func newMemStore() *memStore {
	return &memStore{
		recordings: make(map[uuid.UUID]*models.Recording),
		parts:      make(map[uuid.UUID]map[int32]models.UploadedPart),
	}
}

func (m *memStore) CreateRecording(_ context.Context, rec *models.Recording) error {
	cp := *rec
	m.recordings[rec.ID] = &cp
	return nil
}

func (m *memStore) GetRecording(_ context.Context, id uuid.UUID) (*models.Recording, error) {
	rec, ok := m.recordings[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *rec
	return &cp, nil
}

func (m *memStore) UpsertPart(_ context.Context, recordingID uuid.UUID, part models.UploadedPart) error {
	if m.parts[recordingID] == nil {
		m.parts[recordingID] = make(map[int32]models.UploadedPart)
	}
	m.parts[recordingID][part.PartNumber] = part
	return nil
}

func (m *memStore) ListParts(_ context.Context, recordingID uuid.UUID) ([]models.UploadedPart, error) {
	var out []models.UploadedPart
	for _, p := range m.parts[recordingID] {
		out = append(out, p)
	}
	return out, nil
}

func (m *memStore) UpdateProgress(_ context.Context, recordingID uuid.UUID, sizeDelta, endedAtMs int64) error {
	rec := m.recordings[recordingID]
	rec.SizeBytes += sizeDelta
	if endedAtMs > rec.EndedAtMs {
		rec.EndedAtMs = endedAtMs
	}
	return nil
}

func (m *memStore) UpdateStatus(_ context.Context, recordingID uuid.UUID, status string) error {
	m.recordings[recordingID].Status = status
	return nil
}

func (m *memStore) CompleteRecording(_ context.Context, recordingID uuid.UUID, location, etag string) error {
	rec := m.recordings[recordingID]
	rec.Status = models.RecordingStatusCompleted
	rec.Location = location
	return nil
}

// fakeProvider implements storage.Provider and records completion calls.
type fakeProvider struct {
	kind          string
	completeCalls int
	completeParts []storage.CompletedPart
	completeErr   error
	beginErr      error
}

func (f *fakeProvider) Kind() string { return f.kind }

func (f *fakeProvider) BeginUpload(_ context.Context, in storage.BeginUploadInput) (*storage.UploadTarget, error) {
	if err := storage.ValidateUploadInput(in, storage.MaxWasabiObjectBytes); err != nil {
		return nil, err
	}
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return &storage.UploadTarget{
		Provider: f.kind,
		FileID:   "recordings/" + in.RoomID + "/" + in.Filename,
		UploadID: "upload-" + in.RecordingID,
	}, nil
}

func (f *fakeProvider) PartUploadURL(_ context.Context, fileID, uploadID string, partNumber int32) (string, error) {
	return fmt.Sprintf("https://example.test/%s/%d", fileID, partNumber), nil
}

func (f *fakeProvider) CompleteUpload(_ context.Context, fileID, uploadID string, declaredSize int64, parts []storage.CompletedPart) (*storage.CompleteResult, error) {
	f.completeCalls++
	f.completeParts = append([]storage.CompletedPart(nil), parts...)
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	if err := storage.ValidateCompletedParts(parts); err != nil {
		return nil, err
	}
	return &storage.CompleteResult{Location: "https://example.test/" + fileID, ETag: "final", SizeBytes: declaredSize}, nil
}

func (f *fakeProvider) DownloadURL(_ context.Context, fileID string, _ time.Duration) (string, error) {
	return "https://example.test/dl/" + fileID, nil
}

// memErrorSink captures logged recording errors.
type memErrorSink struct {
	logged []*models.RecordingError
}

func (s *memErrorSink) LogRecordingError(_ context.Context, e *models.RecordingError) error {
	s.logged = append(s.logged, e)
	return nil
}

func newTestLifecycle() (*Lifecycle, *memStore, *fakeProvider, *memErrorSink) {
	store := newMemStore()
	provider := &fakeProvider{kind: models.ProviderWasabi}
	sink := &memErrorSink{}
	lc := NewLifecycle(store, map[string]storage.Provider{models.ProviderWasabi: provider}, sink, nil)
	return lc, store, provider, sink
}

func testRoom() *models.Room {
	return &models.Room{
		ID:               uuid.New(),
		Name:             "waterdeep-thursdays",
		GMID:             uuid.New(),
		RecordingEnabled: true,
		StorageProvider:  models.ProviderWasabi,
	}
}

func TestStartRecordPartsFinalize(t *testing.T) {
	lc, store, provider, _ := newTestLifecycle()
	ctx := context.Background()
	room := testRoom()
	userID := uuid.New()

	rec, target, err := lc.Start(ctx, room, userID, "session1.webm", "video/webm", 0)
	require.NoError(t, err)
	require.NotNil(t, target)
	assert.Equal(t, models.RecordingStatusRecording, rec.Status)
	assert.NotEmpty(t, rec.ProviderFileID)
	assert.NotEmpty(t, rec.MultipartUploadID)
	assert.Zero(t, rec.SizeBytes)

	require.NoError(t, lc.RecordPart(ctx, rec.ID, 1, "etag1", 1024, 100))
	require.NoError(t, lc.RecordPart(ctx, rec.ID, 2, "etag2", 2048, 200))

	require.True(t, lc.Finalize(ctx, rec.ID))

	final, err := store.GetRecording(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusCompleted, final.Status)
	assert.Equal(t, int64(3072), final.SizeBytes)
	assert.NotEmpty(t, final.Location)

	require.Len(t, provider.completeParts, 2)
	assert.Equal(t, int32(1), provider.completeParts[0].PartNumber)
	assert.Equal(t, "etag1", provider.completeParts[0].ETag)
	assert.Equal(t, int32(2), provider.completeParts[1].PartNumber)
	assert.Equal(t, "etag2", provider.completeParts[1].ETag)
}

func TestStartOnDisabledRoom(t *testing.T) {
	lc, store, _, _ := newTestLifecycle()
	room := testRoom()
	room.RecordingEnabled = false

	_, _, err := lc.Start(context.Background(), room, uuid.New(), "a.webm", "video/webm", 0)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Empty(t, store.recordings, "no recording row created")
}

func TestStartWithoutStorageProvider(t *testing.T) {
	lc, _, _, _ := newTestLifecycle()
	room := testRoom()
	room.StorageProvider = ""

	_, _, err := lc.Start(context.Background(), room, uuid.New(), "a.webm", "video/webm", 0)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestStartValidationFailsFast(t *testing.T) {
	lc, store, _, sink := newTestLifecycle()

	_, _, err := lc.Start(context.Background(), testRoom(), uuid.New(), "bad/name.webm", "video/webm", 0)
	require.Error(t, err)
	assert.True(t, storage.IsValidation(err))
	assert.Empty(t, store.recordings)
	assert.Empty(t, sink.logged, "validation errors are not logged as provider errors")
}

func TestFinalizeWithNoParts(t *testing.T) {
	lc, store, provider, _ := newTestLifecycle()
	ctx := context.Background()

	rec, _, err := lc.Start(ctx, testRoom(), uuid.New(), "a.webm", "video/webm", 0)
	require.NoError(t, err)

	assert.False(t, lc.Finalize(ctx, rec.ID))
	assert.Zero(t, provider.completeCalls, "no provider call with zero parts")

	after, _ := store.GetRecording(ctx, rec.ID)
	assert.Equal(t, models.RecordingStatusRecording, after.Status, "state unchanged")
}

func TestFinalizeIdempotentOnTerminalStates(t *testing.T) {
	lc, store, provider, _ := newTestLifecycle()
	ctx := context.Background()

	rec, _, err := lc.Start(ctx, testRoom(), uuid.New(), "a.webm", "video/webm", 0)
	require.NoError(t, err)
	require.NoError(t, lc.RecordPart(ctx, rec.ID, 1, "etag1", 512, 50))
	require.True(t, lc.Finalize(ctx, rec.ID))

	calls := provider.completeCalls
	assert.False(t, lc.Finalize(ctx, rec.ID), "finalize on completed is a no-op")
	assert.Equal(t, calls, provider.completeCalls, "no additional provider call")

	// Same for failed.
	rec2, _, err := lc.Start(ctx, testRoom(), uuid.New(), "b.webm", "video/webm", 0)
	require.NoError(t, err)
	require.NoError(t, lc.RecordPart(ctx, rec2.ID, 1, "etag1", 512, 50))
	provider.completeErr = &storage.ProviderError{Provider: models.ProviderWasabi, Op: "complete", Err: errors.New("session expired")}
	require.False(t, lc.Finalize(ctx, rec2.ID))

	after, _ := store.GetRecording(ctx, rec2.ID)
	require.Equal(t, models.RecordingStatusFailed, after.Status)
	calls = provider.completeCalls
	assert.False(t, lc.Finalize(ctx, rec2.ID))
	assert.Equal(t, calls, provider.completeCalls)
}

func TestProviderFailureLogsError(t *testing.T) {
	lc, store, provider, sink := newTestLifecycle()
	ctx := context.Background()
	room := testRoom()

	rec, _, err := lc.Start(ctx, room, uuid.New(), "a.webm", "video/webm", 0)
	require.NoError(t, err)
	require.NoError(t, lc.RecordPart(ctx, rec.ID, 1, "etag1", 512, 50))
	provider.completeErr = errors.New("provider rejected completion")

	require.False(t, lc.Finalize(ctx, rec.ID))

	after, _ := store.GetRecording(ctx, rec.ID)
	assert.Equal(t, models.RecordingStatusFailed, after.Status)
	require.Len(t, sink.logged, 1)
	e := sink.logged[0]
	assert.Equal(t, models.ErrorTypeProvider, e.ErrorType)
	assert.Equal(t, room.ID, e.RoomID)
	assert.Equal(t, models.ProviderWasabi, e.Provider)
	assert.Contains(t, e.Context, "part_count")
	assert.Contains(t, e.Context, "provider rejected completion")
}

func TestSizeAccumulatesRegardlessOfOrder(t *testing.T) {
	lc, store, _, _ := newTestLifecycle()
	ctx := context.Background()

	rec, _, err := lc.Start(ctx, testRoom(), uuid.New(), "a.webm", "video/webm", 0)
	require.NoError(t, err)

	sizes := []int64{500, 300, 700, 100}
	order := []int32{3, 1, 4, 2}
	for i, n := range order {
		require.NoError(t, lc.RecordPart(ctx, rec.ID, n, fmt.Sprintf("etag%d", n), sizes[i], int64(i*10)))
	}

	after, _ := store.GetRecording(ctx, rec.ID)
	assert.Equal(t, int64(1600), after.SizeBytes)
	require.True(t, lc.Finalize(ctx, rec.ID), "out-of-order submission still completes: contiguity holds")
}

func TestRecordPartRejectedAfterFinalize(t *testing.T) {
	lc, _, _, _ := newTestLifecycle()
	ctx := context.Background()

	rec, _, err := lc.Start(ctx, testRoom(), uuid.New(), "a.webm", "video/webm", 0)
	require.NoError(t, err)
	require.NoError(t, lc.RecordPart(ctx, rec.ID, 1, "etag1", 512, 50))
	require.True(t, lc.Finalize(ctx, rec.ID))

	err = lc.RecordPart(ctx, rec.ID, 2, "etag2", 512, 60)
	assert.ErrorIs(t, err, ErrNotRecording)
}

func TestFinalizeRejectsGappedParts(t *testing.T) {
	lc, store, provider, sink := newTestLifecycle()
	ctx := context.Background()

	rec, _, err := lc.Start(ctx, testRoom(), uuid.New(), "a.webm", "video/webm", 0)
	require.NoError(t, err)
	require.NoError(t, lc.RecordPart(ctx, rec.ID, 1, "etag1", 100, 10))
	require.NoError(t, lc.RecordPart(ctx, rec.ID, 2, "etag2", 100, 20))
	require.NoError(t, lc.RecordPart(ctx, rec.ID, 4, "etag4", 100, 40))

	require.False(t, lc.Finalize(ctx, rec.ID))
	assert.Equal(t, 1, provider.completeCalls)
	after, _ := store.GetRecording(ctx, rec.ID)
	assert.Equal(t, models.RecordingStatusFailed, after.Status)
	require.Len(t, sink.logged, 1)
}
