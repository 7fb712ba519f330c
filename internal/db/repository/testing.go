package repository

import (
	"context"
	"fmt"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/saltfish/seatscope/go-backend/internal/db"
)

// setupTestDB creates a test database connection pool for integration tests.
// It reads the connection string from TEST_DATABASE_URL or DATABASE_URL.
// If neither is set, the test will be skipped.
func setupTestDB(t *testing.T) *db.Pool {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL or DATABASE_URL not set, skipping integration test")
	}

	pool, err := db.Connect(context.Background(), dbURL, 4, 0, "", zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create test database pool: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
	})

	return pool
}

// truncateTables truncates all test tables to ensure a clean state.
func truncateTables(t *testing.T, pool *db.Pool, tables ...string) {
	t.Helper()

	ctx := context.Background()
	for _, table := range tables {
		query := fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)
		if _, err := pool.Exec(ctx, query); err != nil {
			t.Logf("warning: failed to truncate table %s: %v", table, err)
		}
	}
}
