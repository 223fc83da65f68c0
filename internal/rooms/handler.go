package rooms

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/critroll/backend/internal/middleware"
	"github.com/critroll/backend/internal/models"
	"github.com/critroll/backend/pkg/response"
)

// CreateRequest is the body for POST /rooms.
type CreateRequest struct {
	Name             string `json:"name" binding:"required"`
	Description      string `json:"description"`
	RecordingEnabled bool   `json:"recording_enabled"`
	StorageProvider  string `json:"storage_provider"`
}

// RecordingSettingsRequest is the body for PUT /rooms/:id/recording-settings.
type RecordingSettingsRequest struct {
	RecordingEnabled bool   `json:"recording_enabled"`
	StorageProvider  string `json:"storage_provider"`
}

// Handler handles room HTTP endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a rooms handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

func validProvider(p string) bool {
	return p == "" || p == models.ProviderWasabi || p == models.ProviderGoogleDrive
}

// Create handles POST /rooms. The creator becomes the room's GM.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !validProvider(req.StorageProvider) {
		response.BadRequest(c, "unknown storage provider")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	room := &models.Room{
		Name:             req.Name,
		Description:      req.Description,
		GMID:             userID,
		RecordingEnabled: req.RecordingEnabled,
		StorageProvider:  req.StorageProvider,
	}
	if err := h.repo.Create(c.Request.Context(), room); err != nil {
		h.logger.Error("create room failed", zap.Error(err))
		response.Internal(c, "failed to create room")
		return
	}
	response.Created(c, room)
}

// GetByID handles GET /rooms/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	room, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "room not found")
		return
	}
	response.OK(c, room)
}

// List handles GET /rooms.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context(), nil)
	if err != nil {
		h.logger.Error("list rooms failed", zap.Error(err))
		response.Internal(c, "failed to list rooms")
		return
	}
	response.OK(c, list)
}

// UpdateRecordingSettings handles PUT /rooms/:id/recording-settings (GM only).
func (h *Handler) UpdateRecordingSettings(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	var req RecordingSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !validProvider(req.StorageProvider) {
		response.BadRequest(c, "unknown storage provider")
		return
	}
	if req.RecordingEnabled && req.StorageProvider == "" {
		response.BadRequest(c, "storage provider required when recording is enabled")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	room, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "room not found")
		return
	}
	if room.GMID != userID {
		response.Forbidden(c, "only the GM can change recording settings")
		return
	}
	if err := h.repo.UpdateRecordingSettings(c.Request.Context(), id, req.RecordingEnabled, req.StorageProvider); err != nil {
		h.logger.Error("update recording settings failed", zap.Error(err), zap.String("room_id", id.String()))
		response.Internal(c, "failed to update settings")
		return
	}
	response.OK(c, gin.H{"room_id": id, "recording_enabled": req.RecordingEnabled, "storage_provider": req.StorageProvider})
}

// Delete handles DELETE /rooms/:id (GM only).
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	room, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "room not found")
		return
	}
	if room.GMID != userID {
		response.Forbidden(c, "only the GM can delete the room")
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		response.Internal(c, "failed to delete room")
		return
	}
	response.NoContent(c)
}
