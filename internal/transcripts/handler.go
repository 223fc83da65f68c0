package transcripts

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/critroll/backend/internal/middleware"
	"github.com/critroll/backend/internal/models"
	"github.com/critroll/backend/pkg/queue"
	"github.com/critroll/backend/pkg/response"
)

// Notifier broadcasts transcript events to room members.
type Notifier interface {
	BroadcastToRoomAndPublish(roomID uuid.UUID, event string, payload interface{})
}

// ChunkRequest is one flushed transcript chunk in a batch submission.
type ChunkRequest struct {
	Character   string  `json:"character"`
	StartedAtMs int64   `json:"started_at_ms" binding:"required"`
	EndedAtMs   int64   `json:"ended_at_ms" binding:"required"`
	Text        string  `json:"text" binding:"required"`
	Language    string  `json:"language"`
	Confidence  float64 `json:"confidence"`
	Provider    string  `json:"provider"`
}

// BatchRequest is the body for POST /rooms/:id/transcripts. Clients submit
// whole flush batches; an empty batch is rejected at binding.
type BatchRequest struct {
	Chunks []ChunkRequest `json:"chunks" binding:"required,min=1,dive"`
}

// Handler handles transcript HTTP endpoints.
type Handler struct {
	repo     *Repository
	queue    *queue.Queue
	notifier Notifier
	logger   *zap.Logger
}

// NewHandler creates a transcripts handler.
func NewHandler(repo *Repository, q *queue.Queue, notifier Notifier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, queue: q, notifier: notifier, logger: logger}
}

// SubmitBatch handles POST /rooms/:id/transcripts. Delivery from clients is
// at-least-once, so a chunk may arrive twice after a flush retry; rows are
// appended as-is and readers de-duplicate by timing.
func (h *Handler) SubmitBatch(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	stored := make([]models.TranscriptChunk, 0, len(req.Chunks))
	for _, ch := range req.Chunks {
		t := models.TranscriptChunk{
			RoomID:      roomID,
			UserID:      userID,
			Character:   ch.Character,
			StartedAtMs: ch.StartedAtMs,
			EndedAtMs:   ch.EndedAtMs,
			Text:        ch.Text,
			Language:    ch.Language,
			Confidence:  ch.Confidence,
			Provider:    ch.Provider,
		}
		if err := h.repo.Create(c.Request.Context(), &t); err != nil {
			h.logger.Error("store transcript chunk failed", zap.Error(err), zap.String("room_id", roomID.String()))
			response.Internal(c, "failed to store transcripts")
			return
		}
		stored = append(stored, t)
	}

	if h.notifier != nil {
		for _, t := range stored {
			h.notifier.BroadcastToRoomAndPublish(roomID, "transcript", t)
		}
	}
	response.Created(c, gin.H{"stored": len(stored)})
}

// ListByRoom handles GET /rooms/:id/transcripts.
func (h *Handler) ListByRoom(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	list, err := h.repo.ListByRoom(c.Request.Context(), roomID)
	if err != nil {
		h.logger.Error("list transcripts failed", zap.Error(err), zap.String("room_id", roomID.String()))
		response.Internal(c, "failed to list transcripts")
		return
	}
	response.OK(c, list)
}

// Archive handles POST /rooms/:id/transcripts/archive: enqueue a background
// job that renders the room transcript and stores it in object storage.
func (h *Handler) Archive(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid room id")
		return
	}
	if err := h.queue.EnqueueTranscriptArchive(c.Request.Context(), queue.TranscriptArchivePayload{RoomID: roomID}); err != nil {
		h.logger.Error("enqueue transcript archive failed", zap.Error(err), zap.String("room_id", roomID.String()))
		response.Internal(c, "failed to schedule archive")
		return
	}
	response.OK(c, gin.H{"room_id": roomID, "scheduled": true})
}
