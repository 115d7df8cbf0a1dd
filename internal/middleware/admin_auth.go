package middleware

import (
	"net/http"
	"strings"

	"airdrop-backend/internal/handlers"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	ContextAdminUsername = "admin_username"
	ContextAdminRole     = "admin_role"
)

// AdminAuthMiddleware admin authentication middleware
type AdminAuthMiddleware struct {
	jwtSecret string
	logger    *logrus.Logger
}

// NewAdminAuthMiddleware creates the middleware
func NewAdminAuthMiddleware(jwtSecret string, logger *logrus.Logger) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{
		jwtSecret: jwtSecret,
		logger:    logger,
	}
}

// RequireAdminAuth requires a valid admin bearer token
func (a *AdminAuthMiddleware) RequireAdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		fields := logrus.Fields{
			"path":       c.Request.URL.Path,
			"method":     c.Request.Method,
			"request_id": RequestIDFrom(c),
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			a.logger.WithFields(fields).Warn("Admin auth failed - missing Authorization header")
			abortAuth(c, http.StatusUnauthorized, "Authentication required", "MISSING_AUTH_HEADER")
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			a.logger.WithFields(fields).Warn("Admin auth failed - invalid Authorization format")
			abortAuth(c, http.StatusUnauthorized, "Invalid authorization format, need Bearer token", "INVALID_AUTH_FORMAT")
			return
		}

		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if tokenString == "" {
			a.logger.WithFields(fields).Warn("Admin auth failed - empty token")
			abortAuth(c, http.StatusUnauthorized, "Empty token", "EMPTY_TOKEN")
			return
		}

		claims, err := handlers.ValidateAdminJWTToken(a.jwtSecret, tokenString)
		if err != nil {
			fields["error"] = err.Error()
			a.logger.WithFields(fields).Warn("Admin auth failed - invalid token")
			abortAuth(c, http.StatusUnauthorized, "Invalid or expired token", "INVALID_TOKEN")
			return
		}

		if claims.Role != handlers.AdminRole {
			fields["role"] = claims.Role
			a.logger.WithFields(fields).Warn("Admin auth failed - insufficient permissions")
			abortAuth(c, http.StatusForbidden, "Insufficient permissions", "INSUFFICIENT_PERMISSIONS")
			return
		}

		c.Set(ContextAdminUsername, claims.Username)
		c.Set(ContextAdminRole, claims.Role)
		c.Next()
	}
}

func abortAuth(c *gin.Context, status int, message, code string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   message,
		"code":    code,
	})
}
