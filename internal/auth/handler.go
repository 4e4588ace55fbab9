package auth

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-erp/meeting-scheduler/internal/store"
	"github.com/aura-erp/meeting-scheduler/pkg/response"
)

// Handler handles identity HTTP endpoints.
type Handler struct {
	dir    *Directory
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(dir *Directory, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{dir: dir, logger: logger}
}

// Me handles GET /me. Returns the caller's directory entry.
func (h *Handler) Me(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)
	u, err := h.dir.Lookup(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.NotFound(c, "user not found")
			return
		}
		h.logger.Error("lookup user", zap.Error(err))
		response.Internal(c, "failed to load user")
		return
	}
	response.OK(c, u)
}
