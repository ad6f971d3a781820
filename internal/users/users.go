// Package users implements user accounts and their reputation state.
//
// A user's reputation fields (score, counters, badges, trust level,
// history) are owned by this entity but mutated exclusively through the
// reputation ledger, which serializes writes per user ID. Handlers in
// this package only read, except for the admin badge grant/revoke
// endpoints which go through the same uniqueness rules the ledger uses.
package users

import (
	"context"
	"errors"
	"time"

	"github.com/fuelmap/fuelmap/internal/pagination"
	"github.com/fuelmap/fuelmap/internal/trust"
)

var (
	ErrNotFound = errors.New("users: user not found")
	ErrExists   = errors.New("users: username or email already registered")
)

// Badge is an awarded badge instance on a user.
type Badge struct {
	Key         string            `json:"key"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	AwardedAt   time.Time         `json:"awardedAt"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ReputationEntry is one line of the append-only reputation history.
type ReputationEntry struct {
	Delta     int       `json:"delta"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// User is an account with reputation state.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsAdmin  bool   `json:"isAdmin"`

	// Reputation state. Invariants: Reputation >= 0 at all times, and
	// TrustLevel always equals trust.LevelFor(Reputation) after any
	// mutation.
	Reputation            int               `json:"reputation"`
	Contributions         int               `json:"contributions"`
	VerifiedContributions int               `json:"verifiedContributions"`
	Badges                []Badge           `json:"badges"`
	TrustLevel            trust.Level       `json:"trustLevel"`
	ReputationHistory     []ReputationEntry `json:"reputationHistory"`

	CreatedAt time.Time `json:"createdAt"`
}

// HasBadge reports whether the user already holds the badge key.
func (u *User) HasBadge(key string) bool {
	for _, b := range u.Badges {
		if b.Key == key {
			return true
		}
	}
	return false
}

// Store persists users.
type Store interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Update(ctx context.Context, u *User) error
	List(ctx context.Context, limit int) ([]*User, error)
	// ListPage returns users newest first, starting strictly after the
	// cursor position. Ties on created_at are broken by ID descending.
	ListPage(ctx context.Context, after *pagination.Cursor, limit int) ([]*User, error)
}
