package users

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fuelmap/fuelmap/internal/auth"
	"github.com/fuelmap/fuelmap/internal/badges"
	"github.com/fuelmap/fuelmap/internal/metrics"
	"github.com/fuelmap/fuelmap/internal/pagination"
)

// Handler provides HTTP endpoints for user badge and reputation reads,
// plus the admin badge management routes.
type Handler struct {
	store Store
}

// NewHandler creates a new users handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up public user endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/users/:id/badges", h.GetBadgeSummary)
	r.GET("/badges", h.ListBadgeDefinitions)
}

// RegisterProtectedRoutes sets up endpoints that need an authenticated user.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/users/me/badges", h.GetOwnBadgeSummary)
}

// RegisterAdminRoutes sets up admin user management endpoints.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/users", h.ListUsers)
	r.PATCH("/users/:id/badges/:key", h.GrantBadge)
	r.DELETE("/users/:id/badges/:key", h.RevokeBadge)
}

// GetBadgeSummary returns the public badge view for a user.
// GET /v1/users/:id/badges
func (h *Handler) GetBadgeSummary(c *gin.Context) {
	h.badgeSummary(c, c.Param("id"))
}

// GetOwnBadgeSummary returns the authenticated user's badge view.
// GET /v1/users/me/badges
func (h *Handler) GetOwnBadgeSummary(c *gin.Context) {
	h.badgeSummary(c, auth.UserID(c))
}

func (h *Handler) badgeSummary(c *gin.Context, userID string) {
	u, err := h.store.GetByID(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "user_not_found",
			"message": "User not found",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trustLevel": u.TrustLevel,
		"reputation": u.Reputation,
		"badges":     u.Badges,
	})
}

// ListBadgeDefinitions returns the full badge catalog.
// GET /v1/badges
func (h *Handler) ListBadgeDefinitions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"badges": badges.All()})
}

// ListUsers returns registered users, newest first, with cursor paging.
// GET /v1/admin/users?cursor=&limit=
func (h *Handler) ListUsers(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "Cursor is malformed",
		})
		return
	}

	// Fetch one extra row to learn whether another page exists.
	list, err := h.store.ListPage(c.Request.Context(), cursor, limit+1)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": "Failed to list users",
		})
		return
	}

	page, next, hasMore := pagination.ComputePage(list, limit, func(u *User) (time.Time, string) {
		return u.CreatedAt, u.ID
	})
	c.JSON(http.StatusOK, gin.H{
		"users":      page,
		"count":      len(page),
		"nextCursor": next,
		"hasMore":    hasMore,
	})
}

// GrantBadge adds a catalog badge to a user. Granting a badge the user
// already holds is a no-op.
// PATCH /v1/admin/users/:id/badges/:key
func (h *Handler) GrantBadge(c *gin.Context) {
	key := c.Param("key")
	def, ok := badges.Lookup(key)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "unknown_badge",
			"message": "Badge key is not in the catalog",
		})
		return
	}

	u, err := h.store.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "user_not_found",
			"message": "User not found",
		})
		return
	}

	if !u.HasBadge(key) {
		u.Badges = append(u.Badges, Badge{
			Key:         key,
			Name:        def.Name,
			Description: def.Description,
			AwardedAt:   time.Now(),
		})
		if err := h.store.Update(c.Request.Context(), u); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "update_failed",
				"message": "Failed to grant badge",
			})
			return
		}
		metrics.BadgesAwardedTotal.WithLabelValues(key).Inc()
	}

	c.JSON(http.StatusOK, u)
}

// RevokeBadge removes a badge from a user by key.
// DELETE /v1/admin/users/:id/badges/:key
func (h *Handler) RevokeBadge(c *gin.Context) {
	key := c.Param("key")

	u, err := h.store.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "user_not_found",
			"message": "User not found",
		})
		return
	}

	kept := u.Badges[:0]
	for _, b := range u.Badges {
		if b.Key != key {
			kept = append(kept, b)
		}
	}
	u.Badges = kept

	if err := h.store.Update(c.Request.Context(), u); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "update_failed",
			"message": "Failed to revoke badge",
		})
		return
	}

	c.JSON(http.StatusOK, u)
}
