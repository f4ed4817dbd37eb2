//go:build integration

// Package dbtest opens a scratch Postgres database for integration tests.
package dbtest

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"task_tracker/internal/config"
	"task_tracker/internal/db"
)

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// Open connects to the database named by the TEST_DB_* variables, applies the
// schema and empties both tables. The test is skipped when Postgres is not
// reachable.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	cfg := &config.DBConfig{
		Host:     getEnv("TEST_DB_HOST", "localhost"),
		Port:     getEnv("TEST_DB_PORT", "5432"),
		User:     getEnv("TEST_DB_USER", "postgres"),
		Password: getEnv("TEST_DB_PASSWORD", "postgres"),
		Name:     getEnv("TEST_DB_NAME", "task_tracker_test"),
		SSLMode:  "disable",
	}

	database, err := sql.Open("pgx", db.DSN(cfg))
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := database.PingContext(ctx); err != nil {
		database.Close()
		t.Skipf("postgres unavailable: %v", err)
	}

	if err := db.Migrate(ctx, database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := database.ExecContext(ctx, `TRUNCATE tasks, users RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	t.Cleanup(func() { database.Close() })
	return database
}
