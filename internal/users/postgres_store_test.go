package users

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/fuelmap/fuelmap/internal/pagination"
	"github.com/fuelmap/fuelmap/internal/testutil"
	"github.com/fuelmap/fuelmap/internal/trust"
)

// TestPostgresStore runs against the database named by POSTGRES_URL.
func TestPostgresStore(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	exercisePostgresStore(t, db)
}

// TestPostgresStoreContainer runs the same suite against a throwaway
// container when PGTEST_CONTAINERS is set.
func TestPostgresStoreContainer(t *testing.T) {
	db, cleanup := testutil.PGContainer(t)
	defer cleanup()
	exercisePostgresStore(t, db)
}

func exercisePostgresStore(t *testing.T, db *sql.DB) {
	t.Helper()

	store := NewPostgresStore(db)
	ctx := context.Background()

	u := &User{
		ID:         "usr_pg1",
		Username:   "ada",
		Email:      "ada@example.com",
		Reputation: 7,
		TrustLevel: trust.LevelScout,
		CreatedAt:  time.Now().UTC(),
	}
	if err := store.Create(ctx, u); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Unique username and email are enforced case-insensitively at the
	// schema level.
	dup := &User{ID: "usr_pg2", Username: "ADA", Email: "other@example.com"}
	if err := store.Create(ctx, dup); err != ErrExists {
		t.Errorf("duplicate username: got %v, want ErrExists", err)
	}
	dupEmail := &User{ID: "usr_pg3", Username: "grace", Email: "Ada@Example.com"}
	if err := store.Create(ctx, dupEmail); err != ErrExists {
		t.Errorf("duplicate email: got %v, want ErrExists", err)
	}

	got, err := store.GetByID(ctx, "usr_pg1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Reputation != 7 || got.TrustLevel != trust.LevelScout {
		t.Errorf("round trip lost state: rep=%d level=%s", got.Reputation, got.TrustLevel)
	}
	if got.Badges == nil || got.ReputationHistory == nil {
		t.Error("badge and history slices should be initialized on load")
	}

	if _, err := store.GetByUsername(ctx, "AdA"); err != nil {
		t.Errorf("GetByUsername should be case-insensitive: %v", err)
	}

	// Update persists badges and appends the new history tail.
	got.Reputation = 22
	got.TrustLevel = trust.LevelContributor
	got.Contributions = 3
	got.Badges = append(got.Badges, Badge{
		Key:       "first_submission",
		Name:      "First Drop",
		AwardedAt: time.Now().UTC(),
		Metadata:  map[string]string{"stationId": "stn_1"},
	})
	got.ReputationHistory = append(got.ReputationHistory,
		ReputationEntry{Delta: 1, Reason: "Price submission", Timestamp: time.Now().UTC()},
		ReputationEntry{Delta: 2, Reason: "Admin approved submission", Timestamp: time.Now().UTC()},
	)
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	reloaded, err := store.GetByID(ctx, "usr_pg1")
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.Reputation != 22 || reloaded.Contributions != 3 {
		t.Errorf("update lost state: rep=%d contributions=%d", reloaded.Reputation, reloaded.Contributions)
	}
	if len(reloaded.Badges) != 1 || reloaded.Badges[0].Key != "first_submission" {
		t.Errorf("badges = %v, want one first_submission", reloaded.Badges)
	}
	if reloaded.Badges[0].Metadata["stationId"] != "stn_1" {
		t.Errorf("badge metadata lost: %v", reloaded.Badges[0].Metadata)
	}
	if len(reloaded.ReputationHistory) != 2 {
		t.Fatalf("history length = %d, want 2", len(reloaded.ReputationHistory))
	}
	if reloaded.ReputationHistory[1].Delta != 2 {
		t.Errorf("history order lost: %+v", reloaded.ReputationHistory)
	}

	// A second Update must not duplicate already-persisted history rows.
	if err := store.Update(ctx, reloaded); err != nil {
		t.Fatalf("second Update failed: %v", err)
	}
	again, _ := store.GetByID(ctx, "usr_pg1")
	if len(again.ReputationHistory) != 2 {
		t.Errorf("history duplicated: length = %d, want 2", len(again.ReputationHistory))
	}

	if err := store.Update(ctx, &User{ID: "usr_missing"}); err != ErrNotFound {
		t.Errorf("update of unknown user: got %v, want ErrNotFound", err)
	}

	list, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("List returned %d users, want 1", len(list))
	}

	// Keyset paging walks the (created_at, id) index without overlap.
	older := &User{
		ID:        "usr_pg0",
		Username:  "grace",
		Email:     "grace@example.com",
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}
	if err := store.Create(ctx, older); err != nil {
		t.Fatalf("Create older user failed: %v", err)
	}
	page, err := store.ListPage(ctx, nil, 1)
	if err != nil {
		t.Fatalf("ListPage failed: %v", err)
	}
	if len(page) != 1 || page[0].ID != "usr_pg1" {
		t.Fatalf("first page = %+v, want usr_pg1", page)
	}
	rest, err := store.ListPage(ctx, &pagination.Cursor{CreatedAt: page[0].CreatedAt, ID: page[0].ID}, 10)
	if err != nil {
		t.Fatalf("ListPage after cursor failed: %v", err)
	}
	if len(rest) != 1 || rest[0].ID != "usr_pg0" {
		t.Errorf("second page = %+v, want usr_pg0", rest)
	}
}
