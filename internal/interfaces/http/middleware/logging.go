package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bookwise-inc/bookwise/internal/shared/constants"
	"github.com/bookwise-inc/bookwise/internal/shared/logger"
)

// RequestObserver receives one call per finished request.
type RequestObserver interface {
	HTTPRequest(method, route string, status int, d time.Duration)
}

// RequestID echoes X-Request-ID or generates one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(constants.HeaderXRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(constants.ContextKeyRequestID, id)
		c.Header(constants.HeaderXRequestID, id)
		c.Next()
	}
}

func CustomLogger(log logger.Interface, observer RequestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		if observer != nil {
			observer.HTTPRequest(c.Request.Method, route, status, latency)
		}

		args := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", latency,
			"client_ip", c.ClientIP(),
			"body_size", c.Writer.Size(),
		}

		if requestID, exists := c.Get(constants.ContextKeyRequestID); exists {
			args = append(args, "request_id", requestID)
		}
		if sub, exists := c.Get(constants.ContextKeyAdminSub); exists {
			args = append(args, "admin", sub)
		}
		if len(c.Errors) > 0 {
			args = append(args, "error", c.Errors.String())
		}

		switch {
		case status >= 500:
			log.Errorw("HTTP request completed with server error", args...)
		case status >= 400:
			log.Warnw("HTTP request completed with client error", args...)
		default:
			log.Debugw("HTTP request completed successfully", args...)
		}
	}
}
