package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-erp/meeting-scheduler/internal/auth"
)

func authRouter(jwtService *auth.JWTService, roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", JWT(jwtService), RequireRole(roles...), func(c *gin.Context) {
		c.String(http.StatusOK, c.MustGet(ContextUserID).(uuid.UUID).String())
	})
	return r
}

func TestJWTMiddleware(t *testing.T) {
	svc := auth.NewJWTService("secret", 1)
	id := uuid.New()
	token, err := svc.Generate(id, "a@example.com", "A", "member")
	require.NoError(t, err)
	r := authRouter(svc)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, id.String(), w.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	svc := auth.NewJWTService("secret", 1)
	member, err := svc.Generate(uuid.New(), "m@example.com", "", "member")
	require.NoError(t, err)
	organizer, err := svc.Generate(uuid.New(), "o@example.com", "", "organizer")
	require.NoError(t, err)
	r := authRouter(svc, "organizer")

	for token, want := range map[string]int{member: http.StatusForbidden, organizer: http.StatusOK} {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code)
	}
}
