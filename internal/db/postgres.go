package db

import (
	"database/sql"
	"fmt"
	"task_tracker/internal/config"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
)

const maxRetries = 5

func DSN(DBCfg *config.DBConfig) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s", DBCfg.Host, DBCfg.Port, DBCfg.User, DBCfg.Password, DBCfg.Name, DBCfg.SSLMode)
}

// Init opens the pool and pings it, retrying with a linear backoff.
func Init(DBCfg *config.DBConfig) (*sql.DB, error) {
	var db *sql.DB
	var err error

	for i := 0; i < maxRetries; i++ {
		db, err = sql.Open("pgx", DSN(DBCfg))
		if err != nil {
			logrus.WithError(err).Warnf("Failed to open database connection (attempt %d/%d)", i+1, maxRetries)
			time.Sleep(time.Duration(i+1) * time.Second)
			continue
		}

		if err = db.Ping(); err != nil {
			logrus.WithError(err).Warnf("Failed to ping database (attempt %d/%d)", i+1, maxRetries)
			if err := db.Close(); err != nil {
				logrus.WithError(err).Warn("Failed to close database connection")
			}
			time.Sleep(time.Duration(i+1) * time.Second)
			continue
		}

		break
	}

	if err != nil {
		return nil, fmt.Errorf("connect to database after %d attempts: %w", maxRetries, err)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	logrus.Info("Database connection established successfully")
	return db, nil
}
