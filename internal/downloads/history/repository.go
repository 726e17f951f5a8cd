// Package history keeps an audit log of snapshot load attempts in Postgres.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/spmonitor/dashboard/internal/downloads"
)

// Schema creates the load log table.
const Schema = `CREATE TABLE IF NOT EXISTS snapshot_loads (
	id           BIGSERIAL PRIMARY KEY,
	endpoint     TEXT NOT NULL,
	trigger      TEXT NOT NULL,
	succeeded    BOOLEAN NOT NULL,
	digest       TEXT NOT NULL DEFAULT '',
	generated_at TIMESTAMPTZ,
	records      INTEGER NOT NULL DEFAULT 0,
	duration_ms  BIGINT NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	loaded_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS snapshot_loads_loaded_at_idx ON snapshot_loads (loaded_at DESC)`

const (
	insertLoad = `INSERT INTO snapshot_loads (endpoint, trigger, succeeded, digest, generated_at, records, duration_ms, error, loaded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	selectRecent = `SELECT endpoint, trigger, succeeded, digest, generated_at, records, duration_ms, error, loaded_at
FROM snapshot_loads ORDER BY loaded_at DESC, id DESC LIMIT $1`
)

// DefaultLimit bounds Recent when no limit is given.
const DefaultLimit = 20

// Load is one row of the load log.
type Load struct {
	Endpoint    string     `json:"endpoint"`
	Trigger     string     `json:"trigger"`
	Succeeded   bool       `json:"succeeded"`
	Digest      string     `json:"digest,omitempty"`
	GeneratedAt *time.Time `json:"generatedAt,omitempty"`
	Records     int        `json:"records"`
	DurationMS  int64      `json:"durationMs"`
	Error       string     `json:"error,omitempty"`
	LoadedAt    time.Time  `json:"loadedAt"`
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
}

// Repository reads and writes the load log.
type Repository struct {
	db dbtx
}

// NewRepository wraps a pgx pool.
func NewRepository(db dbtx) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the table when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("history: ensure schema: %w", err)
	}
	return nil
}

// RecordLoad implements downloads.LoadRecorder.
func (r *Repository) RecordLoad(ctx context.Context, event downloads.LoadEvent) error {
	generated := pgtype.Timestamptz{}
	if !event.GeneratedAt.IsZero() {
		generated = pgtype.Timestamptz{Time: event.GeneratedAt, Valid: true}
	}
	errText := ""
	if event.Err != nil {
		errText = event.Err.Error()
	}
	at := event.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := r.db.Exec(ctx, insertLoad,
		event.Endpoint,
		event.Trigger,
		event.Succeeded(),
		event.Digest,
		generated,
		event.Records,
		event.Duration.Milliseconds(),
		errText,
		at,
	)
	if err != nil {
		return fmt.Errorf("history: record load: %w", err)
	}
	return nil
}

// Recent returns the latest loads, newest first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Load, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := r.db.Query(ctx, selectRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent loads: %w", err)
	}
	defer rows.Close()

	loads := make([]Load, 0, limit)
	for rows.Next() {
		var (
			load      Load
			generated pgtype.Timestamptz
		)
		if err := rows.Scan(&load.Endpoint, &load.Trigger, &load.Succeeded, &load.Digest, &generated, &load.Records, &load.DurationMS, &load.Error, &load.LoadedAt); err != nil {
			return nil, fmt.Errorf("history: scan load: %w", err)
		}
		if generated.Valid {
			t := generated.Time
			load.GeneratedAt = &t
		}
		loads = append(loads, load)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: recent loads: %w", err)
	}
	return loads, nil
}
