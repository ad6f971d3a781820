package auth

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyAPIKey is the gin context key holding the validated API key.
	ContextKeyAPIKey = "apiKey"
	// ContextKeyUserID is the gin context key holding the authenticated user ID.
	ContextKeyUserID = "authUserID"
)

// AdminChecker reports whether a user ID belongs to an admin account.
// The users store satisfies this through a small adapter in the server.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// Middleware extracts and validates the API key from the request.
// Sets the key and user ID in context when valid; never aborts by itself.
func Middleware(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("Authorization")
		if apiKey == "" {
			apiKey = c.GetHeader("X-API-Key")
		}

		if apiKey != "" {
			key, err := m.ValidateKey(c.Request.Context(), apiKey)
			if err == nil {
				c.Set(ContextKeyAPIKey, key)
				c.Set(ContextKeyUserID, key.UserID)
			}
		}

		c.Next()
	}
}

// RequireAuth rejects requests that did not present a valid API key.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(ContextKeyAPIKey); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "API key required. Include 'Authorization: Bearer fk_...' header.",
			})
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects requests whose authenticated user is not an admin.
func RequireAdmin(checker AdminChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := UserID(c)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "API key required.",
			})
			return
		}

		isAdmin, err := checker.IsAdmin(c.Request.Context(), userID)
		if err != nil || !isAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Access denied. Admins only.",
			})
			return
		}

		c.Next()
	}
}

// UserID returns the authenticated user ID, or "" when unauthenticated.
func UserID(c *gin.Context) string {
	if id, exists := c.Get(ContextKeyUserID); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

// GetAPIKey returns the API key from context, if the request authenticated.
func GetAPIKey(c *gin.Context) (*APIKey, bool) {
	v, exists := c.Get(ContextKeyAPIKey)
	if !exists {
		return nil, false
	}
	key, ok := v.(*APIKey)
	return key, ok
}
