package recordings

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/critroll/backend/internal/middleware"
	"github.com/critroll/backend/internal/models"
	"github.com/critroll/backend/internal/rooms"
	"github.com/critroll/backend/pkg/response"
	"github.com/critroll/backend/pkg/storage"
)

// Notifier broadcasts recording lifecycle events to room members.
type Notifier interface {
	BroadcastToRoomAndPublish(roomID uuid.UUID, event string, payload interface{})
}

// StartRequest is the body for POST /rooms/:id/recordings/start.
type StartRequest struct {
	Filename  string `json:"filename" binding:"required"`
	MimeType  string `json:"mime_type" binding:"required"`
	SizeBytes int64  `json:"size_bytes"`
}

// PartRequest is the body for POST /recordings/:id/parts.
type PartRequest struct {
	PartNumber int32  `json:"part_number" binding:"required,min=1"`
	ETag       string `json:"etag" binding:"required"`
	SizeBytes  int64  `json:"size_bytes" binding:"required,min=1"`
	EndedAtMs  int64  `json:"ended_at_ms"`
}

// Handler handles recording HTTP endpoints.
type Handler struct {
	lifecycle *Lifecycle
	repo      *Repository
	roomRepo  *rooms.Repository
	notifier  Notifier
	logger    *zap.Logger
}

// NewHandler creates a recordings handler.
func NewHandler(lifecycle *Lifecycle, repo *Repository, roomRepo *rooms.Repository, notifier Notifier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{lifecycle: lifecycle, repo: repo, roomRepo: roomRepo, notifier: notifier, logger: logger}
}

// Start handles POST /rooms/:id/recordings/start. Opens a provider upload
// session and returns the upload target for direct client streaming.
func (h *Handler) Start(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	room, err := h.roomRepo.GetByID(c.Request.Context(), roomID)
	if err != nil {
		response.NotFound(c, "room not found")
		return
	}

	rec, target, err := h.lifecycle.Start(c.Request.Context(), room, userID, req.Filename, req.MimeType, req.SizeBytes)
	if err != nil {
		var cfgErr *ConfigurationError
		switch {
		case errors.As(err, &cfgErr):
			response.BadRequest(c, cfgErr.Error())
		case storage.IsValidation(err):
			response.BadRequest(c, err.Error())
		default:
			h.logger.Error("start recording failed", zap.Error(err), zap.String("room_id", roomID.String()))
			response.Internal(c, "failed to start recording")
		}
		return
	}

	if h.notifier != nil {
		h.notifier.BroadcastToRoomAndPublish(roomID, "recording_started", gin.H{
			"recording_id": rec.ID,
			"user_id":      userID,
		})
	}
	response.Created(c, gin.H{"recording": rec, "upload": target})
}

// PartUploadURL handles GET /recordings/:id/parts/:part/upload-url.
func (h *Handler) PartUploadURL(c *gin.Context) {
	rec, ok := h.loadOwnedRecording(c)
	if !ok {
		return
	}
	n, err := strconv.ParseInt(c.Param("part"), 10, 32)
	if err != nil || n < 1 {
		response.BadRequest(c, "invalid part number")
		return
	}
	partNumber := int32(n)
	provider, ok := h.lifecycle.Provider(rec.Provider)
	if !ok {
		response.Internal(c, "storage provider not configured")
		return
	}
	url, err := provider.PartUploadURL(c.Request.Context(), rec.ProviderFileID, rec.MultipartUploadID, partNumber)
	if err != nil {
		if storage.IsValidation(err) {
			response.BadRequest(c, err.Error())
			return
		}
		h.logger.Error("part upload url failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
		response.Internal(c, "failed to generate upload URL")
		return
	}
	response.OK(c, gin.H{"upload_url": url, "part_number": partNumber})
}

// RecordPart handles POST /recordings/:id/parts. The client acknowledges a
// chunk it uploaded directly to the provider.
func (h *Handler) RecordPart(c *gin.Context) {
	rec, ok := h.loadOwnedRecording(c)
	if !ok {
		return
	}
	var req PartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	err := h.lifecycle.RecordPart(c.Request.Context(), rec.ID, req.PartNumber, req.ETag, req.SizeBytes, req.EndedAtMs)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotRecording):
			response.Conflict(c, "recording is not accepting parts")
		case storage.IsValidation(err):
			response.BadRequest(c, err.Error())
		default:
			h.logger.Error("record part failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
			response.Internal(c, "failed to record part")
		}
		return
	}
	response.OK(c, gin.H{"recording_id": rec.ID, "part_number": req.PartNumber})
}

// Stop handles POST /recordings/:id/stop: finalize the multipart upload.
// A false result with the recording now failed means the provider rejected
// completion (error logged, retry is an operator/worker decision); a false
// result with state unchanged means the recording was not ready.
func (h *Handler) Stop(c *gin.Context) {
	rec, ok := h.loadOwnedRecording(c)
	if !ok {
		return
	}
	if h.lifecycle.Finalize(c.Request.Context(), rec.ID) {
		if h.notifier != nil {
			h.notifier.BroadcastToRoomAndPublish(rec.RoomID, "recording_completed", gin.H{
				"recording_id": rec.ID,
			})
		}
		response.OK(c, gin.H{"recording_id": rec.ID, "status": models.RecordingStatusCompleted})
		return
	}

	after, err := h.repo.GetRecording(c.Request.Context(), rec.ID)
	if err != nil {
		response.Internal(c, "failed to load recording")
		return
	}
	switch after.Status {
	case models.RecordingStatusFailed:
		if h.notifier != nil {
			h.notifier.BroadcastToRoomAndPublish(rec.RoomID, "recording_failed", gin.H{
				"recording_id": rec.ID,
			})
		}
		response.OK(c, gin.H{"recording_id": rec.ID, "status": models.RecordingStatusFailed})
	case models.RecordingStatusCompleted:
		response.OK(c, gin.H{"recording_id": rec.ID, "status": models.RecordingStatusCompleted})
	default:
		response.Conflict(c, "recording not ready to finalize")
	}
}

// DownloadURL handles GET /recordings/:id/download-url.
func (h *Handler) DownloadURL(c *gin.Context) {
	rec, ok := h.loadOwnedRecording(c)
	if !ok {
		return
	}
	if rec.Status != models.RecordingStatusCompleted {
		response.BadRequest(c, "recording not ready for download")
		return
	}
	provider, ok := h.lifecycle.Provider(rec.Provider)
	if !ok {
		response.Internal(c, "storage provider not configured")
		return
	}
	url, err := provider.DownloadURL(c.Request.Context(), rec.ProviderFileID, 0)
	if err != nil {
		h.logger.Error("download url failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
		response.Internal(c, "failed to generate download URL")
		return
	}
	response.OK(c, gin.H{"download_url": url})
}

// ListByRoom handles GET /rooms/:id/recordings.
func (h *Handler) ListByRoom(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	list, err := h.repo.ListByRoom(c.Request.Context(), roomID)
	if err != nil {
		h.logger.Error("list recordings failed", zap.Error(err), zap.String("room_id", roomID.String()))
		response.Internal(c, "failed to list recordings")
		return
	}
	response.OK(c, list)
}

// loadOwnedRecording parses :id, loads the recording and checks the caller
// owns it or runs the room.
func (h *Handler) loadOwnedRecording(c *gin.Context) (*models.Recording, bool) {
	recordingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return nil, false
	}
	rec, err := h.repo.GetRecording(c.Request.Context(), recordingID)
	if err != nil {
		response.NotFound(c, "recording not found")
		return nil, false
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if rec.UserID != userID {
		room, err := h.roomRepo.GetByID(c.Request.Context(), rec.RoomID)
		if err != nil || room.GMID != userID {
			response.Forbidden(c, "not authorized for this recording")
			return nil, false
		}
	}
	return rec, true
}
