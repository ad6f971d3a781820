package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PGContainer starts a throwaway PostgreSQL container, applies all
// migrations, and returns a connected *sql.DB plus a cleanup function
// that terminates the container.
//
// Container tests are opt-in because they need a Docker daemon: set
// PGTEST_CONTAINERS=1 to run them. For a long-lived local database use
// PGTest instead.
func PGContainer(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	if os.Getenv("PGTEST_CONTAINERS") == "" {
		t.Skip("PGTEST_CONTAINERS not set, skipping container-backed test")
	}

	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("fuelmap_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("pgcontainer: start postgres: %v", err)
	}

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = testcontainers.TerminateContainer(ctr)
		t.Fatalf("pgcontainer: connection string: %v", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		_ = testcontainers.TerminateContainer(ctr)
		t.Fatalf("pgcontainer: open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		_ = testcontainers.TerminateContainer(ctr)
		t.Fatalf("pgcontainer: connect to database: %v", err)
	}

	if err := runMigrations(ctx, db, findMigrationsDir(t)); err != nil {
		_ = db.Close()
		_ = testcontainers.TerminateContainer(ctr)
		t.Fatalf("pgcontainer: run migrations: %v", err)
	}

	cleanup := func() {
		_ = db.Close()
		_ = testcontainers.TerminateContainer(ctr)
	}

	return db, cleanup
}
