package errorlog

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/critroll/backend/pkg/response"
)

// Handler handles recording error HTTP endpoints (operator views).
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates an error log handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// ListByRoom handles GET /rooms/:id/recording-errors?include_resolved=true.
func (h *Handler) ListByRoom(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	includeResolved := c.Query("include_resolved") == "true"
	list, err := h.repo.ListByRoom(c.Request.Context(), roomID, includeResolved)
	if err != nil {
		h.logger.Error("list recording errors failed", zap.Error(err), zap.String("room_id", roomID.String()))
		response.Internal(c, "failed to list recording errors")
		return
	}
	response.OK(c, list)
}

// Resolve handles PATCH /recording-errors/:id/resolve.
func (h *Handler) Resolve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid error id")
		return
	}
	if err := h.repo.MarkResolved(c.Request.Context(), id); err != nil {
		h.logger.Error("resolve recording error failed", zap.Error(err), zap.String("error_id", id.String()))
		response.Internal(c, "failed to resolve error")
		return
	}
	response.OK(c, gin.H{"id": id, "resolved": true})
}
