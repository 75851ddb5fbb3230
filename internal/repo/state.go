// Package repo contains all database access logic for the TripMate backend.
// StateRepo is the single persistence interface; Postgres and MongoDB
// implementations live side by side. No business logic lives here, only
// queries and type mapping.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pkordes/tripmate/internal/domain"
)

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and pgx.Tx.
// Integration tests pass a transaction that is rolled back after each test.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// StateRepo stores one TripState document per trip key.
// The service layer depends on this interface, not a concrete store.
type StateRepo interface {
	// Get returns the document stored under key.
	// Returns domain.ErrNotFound if the key has never been written.
	Get(ctx context.Context, key string) (domain.Document, error)

	// Upsert replaces the whole document under key, creating it if needed,
	// and returns the stored row with its refreshed UpdatedAt.
	Upsert(ctx context.Context, key string, state domain.TripState) (domain.Document, error)

	// Delete removes the document. Returns domain.ErrNotFound if it does not exist.
	Delete(ctx context.Context, key string) error
}

// pgStateRepo is the Postgres implementation of StateRepo.
type pgStateRepo struct {
	db db
}

// NewStateRepo constructs a StateRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewStateRepo(db db) StateRepo {
	return &pgStateRepo{db: db}
}

// Get retrieves a document by trip key.
func (r *pgStateRepo) Get(ctx context.Context, key string) (domain.Document, error) {
	const q = `
		SELECT trip_key, state, updated_at
		FROM trip_state
		WHERE trip_key = @key`

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"key": key})
	doc, err := scanDocument(row)
	if err != nil {
		return domain.Document{}, fmt.Errorf("repo.StateRepo.Get: %w", err)
	}
	return doc, nil
}

// Upsert writes the whole document. Concurrent writers to the same key are
// last-write-wins; the notify trigger fires for both inserts and updates.
func (r *pgStateRepo) Upsert(ctx context.Context, key string, state domain.TripState) (domain.Document, error) {
	const q = `
		INSERT INTO trip_state (trip_key, state)
		VALUES (@key, @state)
		ON CONFLICT (trip_key) DO UPDATE
		SET state      = EXCLUDED.state,
		    updated_at = now()
		RETURNING trip_key, state, updated_at`

	raw, err := json.Marshal(state)
	if err != nil {
		return domain.Document{}, fmt.Errorf("repo.StateRepo.Upsert: encode: %w", err)
	}

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"key": key, "state": raw})
	doc, err := scanDocument(row)
	if err != nil {
		return domain.Document{}, fmt.Errorf("repo.StateRepo.Upsert: %w", err)
	}
	return doc, nil
}

// Delete removes a document by trip key.
func (r *pgStateRepo) Delete(ctx context.Context, key string) error {
	const q = `DELETE FROM trip_state WHERE trip_key = @key`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"key": key})
	if err != nil {
		return fmt.Errorf("repo.StateRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.StateRepo.Delete: %w", domain.ErrNotFound)
	}
	return nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanDocument maps a trip_state row into a domain.Document.
func scanDocument(s scanner) (domain.Document, error) {
	var (
		doc domain.Document
		raw []byte
	)
	if err := s.Scan(&doc.Key, &raw, &doc.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Document{}, domain.ErrNotFound
		}
		return domain.Document{}, err
	}
	if err := json.Unmarshal(raw, &doc.State); err != nil {
		return domain.Document{}, fmt.Errorf("decode state: %w", err)
	}
	return doc, nil
}
