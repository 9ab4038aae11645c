package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// DB wraps the Postgres connection pool; all queries are methods on it.
type DB struct {
	*sql.DB
}

func New(databaseURL string) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{DB: conn}, nil
}

// schema is idempotent; habit tables are owned by the schedule CRUD but
// created here so a fresh database is usable.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS default_schedule (
		id         BIGSERIAL PRIMARY KEY,
		event      TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time   TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS day_specific_schedule (
		id          BIGSERIAL PRIMARY KEY,
		event       TEXT NOT NULL,
		day_of_week TEXT NOT NULL,
		start_time  TEXT NOT NULL,
		end_time    TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS narrators (
		id           BIGSERIAL PRIMARY KEY,
		name         TEXT NOT NULL UNIQUE,
		role_prompt  TEXT NOT NULL,
		style_prompt TEXT,
		voice        TEXT,
		sample_path  TEXT,
		temperature  DOUBLE PRECISION NOT NULL DEFAULT 0.7,
		is_default   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS narrators_single_default
		ON narrators (is_default) WHERE is_default`,
	`CREATE TABLE IF NOT EXISTS narrator_samples (
		id         BIGSERIAL PRIMARY KEY,
		label      TEXT NOT NULL,
		file_path  TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS habit_audio_clips (
		id             BIGSERIAL PRIMARY KEY,
		habit_id       BIGINT NOT NULL,
		habit_type     TEXT NOT NULL CHECK (habit_type IN ('default', 'day-specific')),
		scheduled_date DATE NOT NULL,
		narrator_id    BIGINT NOT NULL REFERENCES narrators(id) ON DELETE CASCADE,
		script         TEXT NOT NULL DEFAULT '',
		audio_path     TEXT NOT NULL DEFAULT '',
		status         TEXT NOT NULL CHECK (status IN ('ready', 'failed')),
		error_message  TEXT,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (habit_id, habit_type, scheduled_date)
	)`,
	`CREATE INDEX IF NOT EXISTS habit_audio_clips_lookup
		ON habit_audio_clips (scheduled_date, habit_type, habit_id)`,
	`CREATE TABLE IF NOT EXISTS generation_jobs (
		id             UUID PRIMARY KEY,
		scheduled_date DATE,
		narrator_id    BIGINT,
		trigger        TEXT NOT NULL,
		status         TEXT NOT NULL,
		total          INT NOT NULL DEFAULT 0,
		ready          INT NOT NULL DEFAULT 0,
		failed         INT NOT NULL DEFAULT 0,
		error_message  TEXT,
		started_at     TIMESTAMPTZ,
		finished_at    TIMESTAMPTZ,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates any missing tables and indexes.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// withTx runs fn inside a transaction, rolling back on error.
func (db *DB) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
