package notifications

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-erp/meeting-scheduler/internal/middleware"
	"github.com/aura-erp/meeting-scheduler/internal/store"
	"github.com/aura-erp/meeting-scheduler/pkg/response"
)

// Handler handles notification HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a notification handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// List handles GET /notifications?limit=N.
func (h *Handler) List(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := h.svc.List(c.Request.Context(), userID, limit)
	if err != nil {
		response.Internal(c, "failed to load notifications")
		return
	}
	response.OK(c, list)
}

// MarkRead handles PATCH /notifications/:id/read.
func (h *Handler) MarkRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid notification id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if err := h.svc.MarkRead(c.Request.Context(), id, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.NotFound(c, "notification not found")
			return
		}
		response.Internal(c, "failed to update notification")
		return
	}
	response.NoContent(c)
}
