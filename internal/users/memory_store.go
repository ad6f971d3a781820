package users

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fuelmap/fuelmap/internal/pagination"
	"github.com/fuelmap/fuelmap/internal/trust"
)

// MemoryStore is a thread-safe in-memory user store for demo/development mode.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*User // id -> user
}

// NewMemoryStore creates a new in-memory user store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*User)}
}

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Create(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if strings.EqualFold(existing.Username, u.Username) || strings.EqualFold(existing.Email, u.Email) {
			return ErrExists
		}
	}

	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	if u.TrustLevel == "" {
		u.TrustLevel = trust.LevelFor(u.Reputation)
	}
	if u.Badges == nil {
		u.Badges = []Badge{}
	}
	if u.ReputationHistory == nil {
		u.ReputationHistory = []ReputationEntry{}
	}

	m.users[u.ID] = cloneUser(u)
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (m *MemoryStore) GetByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) Update(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[u.ID]; !ok {
		return ErrNotFound
	}
	m.users[u.ID] = cloneUser(u)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, limit int) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.sortedDesc()
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListPage(ctx context.Context, after *pagination.Cursor, limit int) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.sortedDesc()
	out := make([]*User, 0, limit)
	for _, u := range all {
		if after != nil && !beforeCursor(u, after) {
			continue
		}
		out = append(out, u)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// beforeCursor reports whether u sorts strictly after the cursor position
// in the newest-first ordering.
func beforeCursor(u *User, c *pagination.Cursor) bool {
	if u.CreatedAt.Equal(c.CreatedAt) {
		return u.ID < c.ID
	}
	return u.CreatedAt.Before(c.CreatedAt)
}

// sortedDesc returns cloned users newest first, ties broken by ID
// descending, matching the postgres store's ORDER BY.
func (m *MemoryStore) sortedDesc() []*User {
	out := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// cloneUser deep-copies a user so callers cannot mutate stored state
// without going through Update.
func cloneUser(u *User) *User {
	cp := *u
	cp.Badges = append([]Badge(nil), u.Badges...)
	cp.ReputationHistory = append([]ReputationEntry(nil), u.ReputationHistory...)
	return &cp
}
