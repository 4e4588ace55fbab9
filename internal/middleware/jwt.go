package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-erp/meeting-scheduler/internal/auth"
	"github.com/aura-erp/meeting-scheduler/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = "user_id"
	// ContextUserRole is the key for user role in gin context.
	ContextUserRole = "user_role"
	// ContextUserEmail is the key for user email in gin context.
	ContextUserEmail = "user_email"
	// ContextClaims is the key for the full token claims in gin context.
	ContextClaims = "claims"
)

// JWT returns a middleware that validates JWT and sets user claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Set(ContextUserEmail, claims.Email)
		c.Set(ContextClaims, claims)
		c.Next()
	}
}

// SyncDirectory mirrors the authenticated user into the local directory. Failures are logged and
// never block the request.
func SyncDirectory(dir *auth.Directory, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if v, ok := c.Get(ContextClaims); ok {
			if claims, ok := v.(*auth.Claims); ok {
				if err := dir.Remember(c.Request.Context(), claims); err != nil {
					logger.Warn("directory sync failed", zap.String("user_id", claims.UserID.String()), zap.Error(err))
				}
			}
		}
		c.Next()
	}
}
