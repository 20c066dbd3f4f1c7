package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bookwise-inc/bookwise/internal/infrastructure/auth"
	"github.com/bookwise-inc/bookwise/internal/shared/constants"
	"github.com/bookwise-inc/bookwise/internal/shared/logger"
	"github.com/bookwise-inc/bookwise/internal/shared/utils"
)

type AdminTokenVerifier interface {
	Verify(token string) (*auth.AdminClaims, error)
}

type AuthMiddleware struct {
	verifier AdminTokenVerifier
	logger   logger.Interface
}

func NewAuthMiddleware(verifier AdminTokenVerifier, logger logger.Interface) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		logger:   logger,
	}
}

// RequireAdmin accepts only a bearer token carrying the billing admin scope.
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(constants.HeaderAuthorization)
		if authHeader == "" {
			utils.ErrorResponse(c, http.StatusUnauthorized, "missing authorization token")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			utils.ErrorResponse(c, http.StatusUnauthorized, "invalid authorization header format")
			c.Abort()
			return
		}

		claims, err := m.verifier.Verify(parts[1])
		if err != nil {
			m.logger.Warnw("admin token rejected", "error", err, "client_ip", c.ClientIP())
			utils.ErrorResponse(c, http.StatusUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(constants.ContextKeyAdminSub, claims.Subject)
		c.Next()
	}
}
