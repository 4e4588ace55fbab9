package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/aura-erp/meeting-scheduler/pkg/response"
)

// RequireRole returns a middleware that allows only the given roles. With no roles every
// authenticated caller passes.
func RequireRole(roles ...string) gin.HandlerFunc {
	if len(roles) == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	allowed := make(map[string]struct{})
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		roleVal, ok := c.Get(ContextUserRole)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		role, _ := roleVal.(string)
		if _, ok := allowed[role]; !ok {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
