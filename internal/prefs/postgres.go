package prefs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema creates the preference table.
const Schema = `CREATE TABLE IF NOT EXISTS dashboard_preferences (
	pref_key   TEXT PRIMARY KEY,
	pref_value TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const (
	selectPreference = `SELECT pref_value FROM dashboard_preferences WHERE pref_key = $1`
	upsertPreference = `INSERT INTO dashboard_preferences (pref_key, pref_value, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (pref_key) DO UPDATE SET pref_value = EXCLUDED.pref_value, updated_at = now()`
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresStore keeps preferences in the dashboard_preferences table.
type PostgresStore struct {
	db dbtx
}

// NewPostgresStore wraps a pgx pool or transaction.
func NewPostgresStore(db dbtx) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("prefs: ensure schema: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	if strings.TrimSpace(key) == "" {
		return "", false, ErrInvalidKey
	}
	var value string
	err := s.db.QueryRow(ctx, selectPreference, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("prefs: get %s: %w", key, err)
	}
	return value, true, nil
}

// Set implements Store.
func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if _, err := s.db.Exec(ctx, upsertPreference, key, value); err != nil {
		return fmt.Errorf("prefs: set %s: %w", key, err)
	}
	return nil
}
