package database

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	_ "github.com/lib/pq"
)

// ConnectPostgres opens the principal registry database and creates its
// tables.
func ConnectPostgres(ctx context.Context, postgresURI string, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", postgresURI)
	if err != nil {
		return nil, errors.Wrap(err, "postgres open")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "postgres ping")
	}
	logger.Info("connected to PostgreSQL", "uri", MaskURI(postgresURI))

	if err := InitPostgresTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

var postgresSchema = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
	`CREATE TABLE IF NOT EXISTS principals (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		device_token VARCHAR(255) NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		last_seen TIMESTAMP NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_principals_last_seen ON principals(last_seen)`,
}

// InitPostgresTables creates the principals table if it does not exist.
func InitPostgresTables(ctx context.Context, db *sql.DB) error {
	for _, query := range postgresSchema {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return errors.Wrap(err, "postgres schema")
		}
	}
	return nil
}
