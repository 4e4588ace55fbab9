package middleware

import (
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-erp/meeting-scheduler/pkg/response"
)

// NewOpenAPIValidator creates a Gin middleware that validates incoming requests against the
// OpenAPI document. Requests that do not match it are rejected with 400, unknown routes with 404.
// Authentication is handled by the JWT middleware, not here.
func NewOpenAPIValidator(spec *openapi3.T, logger *zap.Logger) (gin.HandlerFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	// Match paths without a server URL prefix.
	spec.Servers = nil

	router, err := gorillamux.NewRouter(spec)
	if err != nil {
		return nil, fmt.Errorf("creating openapi router: %w", err)
	}
	return validatorHandler(router, logger), nil
}

func validatorHandler(router routers.Router, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		route, pathParams, err := router.FindRoute(c.Request)
		if err != nil {
			response.NotFound(c, "route not found in API specification")
			c.Abort()
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
			},
		}
		if err := openapi3filter.ValidateRequest(c.Request.Context(), input); err != nil {
			logger.Warn("request validation failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
			response.BadRequest(c, sanitizeValidationError(err))
			c.Abort()
			return
		}
		c.Next()
	}
}

func sanitizeValidationError(err error) string {
	msg := err.Error()
	// kin-openapi prefixes the useful part with request and schema context.
	if idx := strings.Index(msg, "Schema:"); idx >= 0 {
		msg = strings.TrimSpace(msg[idx:])
	}
	if idx := strings.Index(msg, "\n"); idx >= 0 {
		msg = strings.TrimSpace(msg[:idx])
	}
	return msg
}
