// Package localstore is the device's durable copy of the trip: a single-file
// SQLite key/value table. The full TripState lives under one versioned key;
// other components keep small string values (trip id, session token) beside it.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // registers "sqlite" driver for database/sql

	"github.com/pkordes/tripmate/internal/domain"
	"github.com/pkordes/tripmate/migrations"
)

// StateKey is where the full document is stored. Bump the suffix when the
// stored shape changes incompatibly.
const StateKey = "tripmate-state-v1"

// Store is safe for concurrent use; database/sql serialises access.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates (if needed) and migrates the database at path.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("localstore.Open: create data dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("localstore.Open: %w", err)
	}
	s, err := New(ctx, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New migrates db and wraps it. The caller keeps ownership of db unless it
// calls Close.
func New(ctx context.Context, db *sql.DB, logger *slog.Logger) (*Store, error) {
	// A single connection keeps SQLite's writer lock uncontended.
	db.SetMaxOpenConns(1)

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.SQLite)
	if err != nil {
		return nil, fmt.Errorf("localstore.New: goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return nil, fmt.Errorf("localstore.New: migrate: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the raw value stored under key. ok is false when absent.
func (s *Store) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("localstore.Store.Get: %w", err)
	}
	return value, true, nil
}

// Set replaces the value stored under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	const q = `
		INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		ON CONFLICT (key) DO UPDATE
		SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, key, value); err != nil {
		return fmt.Errorf("localstore.Store.Set: %w", err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("localstore.Store.Delete: %w", err)
	}
	return nil
}

// Persist writes the full state under StateKey. Failures are logged and
// swallowed; the in-memory copy stays authoritative for the session.
func (s *Store) Persist(ctx context.Context, state domain.TripState) {
	data, err := json.Marshal(state)
	if err != nil {
		s.logger.WarnContext(ctx, "persist: encode state", "error", err)
		return
	}
	if err := s.Set(ctx, StateKey, string(data)); err != nil {
		s.logger.WarnContext(ctx, "persist: write state", "error", err)
	}
}

// Restore returns the stored state shallow-merged over fallback: every
// top-level field present in the stored document replaces fallback's, and
// fields the stored document lacks keep fallback's value. An absent,
// unreadable or invalid stored value yields fallback unchanged.
func (s *Store) Restore(ctx context.Context, fallback domain.TripState) domain.TripState {
	raw, ok, err := s.Get(ctx, StateKey)
	if err != nil {
		s.logger.WarnContext(ctx, "restore: read state", "error", err)
		return fallback
	}
	if !ok {
		return fallback
	}

	merged, err := mergeOver(fallback, []byte(raw))
	if err != nil {
		s.logger.WarnContext(ctx, "restore: stored state is malformed, using defaults", "error", err)
		return fallback
	}
	return merged
}

func mergeOver(fallback domain.TripState, stored []byte) (domain.TripState, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(stored, &top); err != nil {
		return domain.TripState{}, err
	}
	if top == nil {
		return domain.TripState{}, errors.New("stored state is null")
	}

	base, err := json.Marshal(fallback)
	if err != nil {
		return domain.TripState{}, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return domain.TripState{}, err
	}
	for k, v := range top {
		fields[k] = v
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return domain.TripState{}, err
	}
	var out domain.TripState
	if err := json.Unmarshal(data, &out); err != nil {
		return domain.TripState{}, err
	}
	domain.Normalize(&out)
	if err := domain.Validate(out); err != nil {
		return domain.TripState{}, err
	}
	return out, nil
}

// Export writes the stored state as indented JSON.
// Returns domain.ErrNotFound when nothing has been persisted.
func (s *Store) Export(ctx context.Context, w io.Writer) error {
	raw, ok, err := s.Get(ctx, StateKey)
	if err != nil {
		return fmt.Errorf("localstore.Store.Export: %w", err)
	}
	if !ok {
		return fmt.Errorf("localstore.Store.Export: %w", domain.ErrNotFound)
	}
	var state domain.TripState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return fmt.Errorf("localstore.Store.Export: decode: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(state); err != nil {
		return fmt.Errorf("localstore.Store.Export: %w", err)
	}
	return nil
}

// Import reads a full state document from r and validates it. Nothing is
// written; callers commit the result through the reconciliation controller
// so it is persisted and published like any other edit.
func Import(r io.Reader) (domain.TripState, error) {
	var state domain.TripState
	dec := json.NewDecoder(r)
	if err := dec.Decode(&state); err != nil {
		return domain.TripState{}, fmt.Errorf("localstore.Import: %w: %v", domain.ErrValidation, err)
	}
	domain.Normalize(&state)
	if err := domain.Validate(state); err != nil {
		return domain.TripState{}, fmt.Errorf("localstore.Import: %w", err)
	}
	return state, nil
}
