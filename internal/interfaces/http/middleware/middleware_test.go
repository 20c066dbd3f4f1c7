package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookwise-inc/bookwise/internal/infrastructure/auth"
	"github.com/bookwise-inc/bookwise/internal/shared/constants"
	"github.com/bookwise-inc/bookwise/internal/shared/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingObserver struct {
	mu     sync.Mutex
	routes []string
	codes  []int
}

func (o *recordingObserver) HTTPRequest(method, route string, status int, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.routes = append(o.routes, method+" "+route)
	o.codes = append(o.codes, status)
}

func newAdminRouter(svc *auth.AdminTokenService) *gin.Engine {
	r := gin.New()
	mw := NewAuthMiddleware(svc, logger.NewNop())
	r.GET("/admin/ping", mw.RequireAdmin(), func(c *gin.Context) {
		sub, _ := c.Get(constants.ContextKeyAdminSub)
		c.String(http.StatusOK, sub.(string))
	})
	return r
}

func TestRequireAdmin(t *testing.T) {
	svc := auth.NewAdminTokenService("test-secret", 1)
	token, _, err := svc.Issue("ops")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer " + token, http.StatusOK},
	}

	r := newAdminRouter(svc)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
			if tt.header != "" {
				req.Header.Set(constants.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "ops", rec.Body.String())
			}
		})
	}
}

func TestRequestIDAndLogger(t *testing.T) {
	obs := &recordingObserver{}
	r := gin.New()
	r.Use(RequestID(), CustomLogger(logger.NewNop(), obs))
	r.GET("/things/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things/42", nil))
	assert.NotEmpty(t, rec.Header().Get(constants.HeaderXRequestID))

	req := httptest.NewRequest(http.MethodGet, "/things/7", nil)
	req.Header.Set(constants.HeaderXRequestID, "abc-123")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(constants.HeaderXRequestID))

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, []string{"GET /things/:id", "GET /things/:id"}, obs.routes)
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent}, obs.codes)
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(logger.NewNop()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error occurred")
}
