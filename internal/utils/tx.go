package utils

import (
	"context"
	"database/sql"

	"github.com/sirupsen/logrus"
)

// WithTransaction runs fn inside a transaction that is committed when fn
// returns nil and rolled back on error or panic.
func WithTransaction(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	logrus.Debug("Transaction started")

	defer func() {
		if r := recover(); r != nil {
			logrus.Warn("Panic occurred, rolling back transaction")
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		logrus.Debug("Error occurred, rolling back transaction")
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	logrus.Debug("Transaction committed successfully")
	return nil
}
