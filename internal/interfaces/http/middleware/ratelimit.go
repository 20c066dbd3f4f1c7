package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bookwise-inc/bookwise/internal/infrastructure/ratelimit"
	"github.com/bookwise-inc/bookwise/internal/shared/logger"
	"github.com/bookwise-inc/bookwise/internal/shared/utils"
)

// RateLimit limits requests per client IP. When the limiter itself fails the
// request is let through.
func RateLimit(limiter ratelimit.Limiter, log logger.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			log.Warnw("rate limiter unavailable", "error", err)
			c.Next()
			return
		}
		if !allowed {
			utils.ErrorResponse(c, http.StatusTooManyRequests, "rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}
