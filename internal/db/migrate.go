package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		username VARCHAR(50) NOT NULL,
		password VARCHAR(255) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT users_username_key UNIQUE (username)
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id SERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title VARCHAR(255) NOT NULL CHECK (title <> ''),
		description TEXT NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'completed')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_user_id ON tasks (user_id, id)`,
}

// Migrate creates the users and tasks tables if they do not exist yet.
func Migrate(ctx context.Context, database *sql.DB) error {
	for _, stmt := range schema {
		if _, err := database.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	logrus.Info("Database schema is up to date")
	return nil
}
