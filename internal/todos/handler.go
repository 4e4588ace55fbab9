package todos

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-erp/meeting-scheduler/internal/middleware"
	"github.com/aura-erp/meeting-scheduler/pkg/response"
)

// Handler handles todo HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a todo handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// List handles GET /todos. Query ?include_done=1 also returns resolved tasks.
func (h *Handler) List(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.svc.List(c.Request.Context(), userID, c.Query("include_done") == "1")
	if err != nil {
		response.Internal(c, "failed to load todos")
		return
	}
	response.OK(c, list)
}
