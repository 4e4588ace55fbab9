package emaillogs

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-erp/meeting-scheduler/internal/middleware"
	"github.com/aura-erp/meeting-scheduler/internal/store"
	"github.com/aura-erp/meeting-scheduler/pkg/response"
)

// Handler handles email log HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates an email logs handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// ListByMeeting handles GET /meetings/:id/emails. Organizer only.
func (h *Handler) ListByMeeting(c *gin.Context) {
	meetingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid meeting id")
		return
	}
	callerID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	logs, err := h.svc.ListByMeeting(c.Request.Context(), meetingID, callerID)
	switch {
	case err == nil:
		response.OK(c, logs)
	case errors.Is(err, ErrForbidden):
		response.Forbidden(c, err.Error())
	case errors.Is(err, store.ErrNotFound):
		response.NotFound(c, "meeting not found")
	default:
		response.Internal(c, "failed to load email logs")
	}
}
