// Package middleware holds the gin middleware chain.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mdscolour/clawfactory/internal/domain"
	"github.com/mdscolour/clawfactory/internal/service"
)

// ContextUserKey is where the authenticated user lands in the gin context.
const ContextUserKey = "user"

// ErrMissingAuthHeader marks a request with no Authorization header.
var ErrMissingAuthHeader = errors.New("missing Authorization header")

// RequireAuth rejects requests without a valid bearer token. The resolved
// user row is stored in the context for handlers.
func RequireAuth(auth *service.AuthService) gin.HandlerFunc {
	if auth == nil {
		panic("AuthService cannot be nil for RequireAuth middleware")
	}
	return func(c *gin.Context) {
		token, err := extractToken(c)
		if err != nil {
			if errors.Is(err, ErrMissingAuthHeader) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "No token provided"})
			} else {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format"})
			}
			c.Abort()
			return
		}

		user, err := auth.UserFromToken(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, service.ErrAuthenticationFailed) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			} else {
				logrus.WithError(err).Error("Auth middleware: token resolution failed")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
			c.Abort()
			return
		}

		c.Set(ContextUserKey, user)
		c.Next()
	}
}

// OptionalAuth resolves a bearer token when present but lets anonymous
// requests through. Handlers see a nil user for anonymous callers.
func OptionalAuth(auth *service.AuthService) gin.HandlerFunc {
	if auth == nil {
		panic("AuthService cannot be nil for OptionalAuth middleware")
	}
	return func(c *gin.Context) {
		token, err := extractToken(c)
		if err == nil {
			if user, userErr := auth.UserFromToken(c.Request.Context(), token); userErr == nil {
				c.Set(ContextUserKey, user)
			}
		}
		c.Next()
	}
}

// UserFromContext returns the authenticated user, or nil for anonymous
// requests.
func UserFromContext(c *gin.Context) *domain.User {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil
	}
	user, ok := v.(*domain.User)
	if !ok {
		return nil
	}
	return user
}

func extractToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", ErrMissingAuthHeader
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("malformed Authorization header")
	}
	return parts[1], nil
}
