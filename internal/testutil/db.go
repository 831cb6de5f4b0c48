//go:build integration

package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyang/portfolio-api/internal/adapter/postgres/migrations"
)

// SetupTestDB connects to the test database, applies the embedded migrations
// and empties the document tables. It skips the test if TEST_DATABASE_URL is
// not set. Tests sharing the database must not run in parallel.
func SetupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect to test DB: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Fatalf("ping test DB: %v", err)
	}

	if err := migrations.Apply(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE projects, blogs, messages`); err != nil {
		pool.Close()
		t.Fatalf("truncate document tables: %v", err)
	}

	t.Cleanup(func() { pool.Close() })
	return pool
}
