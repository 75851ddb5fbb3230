// Package service contains the business logic for the TripMate backend.
// Services validate inputs, enforce document invariants and orchestrate repo
// and upstream calls. No SQL lives here; services depend on interfaces.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pkordes/tripmate/internal/domain"
	"github.com/pkordes/tripmate/internal/notify"
	"github.com/pkordes/tripmate/internal/repo"
)

// StateService stores whole trip documents. Writes are last-write-wins;
// no merge is attempted.
type StateService struct {
	repo      repo.StateRepo
	publisher notify.Publisher
	logger    *slog.Logger
}

// NewStateService constructs a StateService. publisher may be nil when the
// store announces changes itself (the Postgres trigger).
func NewStateService(r repo.StateRepo, publisher notify.Publisher, logger *slog.Logger) *StateService {
	return &StateService{repo: r, publisher: publisher, logger: logger}
}

// Load returns the document stored under key.
// Returns domain.ErrNotFound when nothing has been saved yet.
func (s *StateService) Load(ctx context.Context, key string) (domain.Document, error) {
	if _, err := domain.ParseTripKey(key); err != nil {
		return domain.Document{}, fmt.Errorf("service.StateService.Load: %w", err)
	}
	doc, err := s.repo.Get(ctx, key)
	if err != nil {
		return domain.Document{}, fmt.Errorf("service.StateService.Load: %w", err)
	}
	return doc, nil
}

// Save normalises and validates state, then replaces the stored document.
// A failed change announcement is logged; the save itself still succeeds.
func (s *StateService) Save(ctx context.Context, key string, state domain.TripState) (domain.Document, error) {
	if _, err := domain.ParseTripKey(key); err != nil {
		return domain.Document{}, fmt.Errorf("service.StateService.Save: %w", err)
	}
	domain.Normalize(&state)
	if err := domain.Validate(state); err != nil {
		return domain.Document{}, fmt.Errorf("service.StateService.Save: %w", err)
	}

	doc, err := s.repo.Upsert(ctx, key, state)
	if err != nil {
		return domain.Document{}, fmt.Errorf("service.StateService.Save: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, key); err != nil {
			s.logger.WarnContext(ctx, "publish change failed", "key", key, "error", err)
		}
	}
	return doc, nil
}

// Reset deletes the stored document. Devices that load afterwards seed it
// again from their own state.
func (s *StateService) Reset(ctx context.Context, key string) error {
	if _, err := domain.ParseTripKey(key); err != nil {
		return fmt.Errorf("service.StateService.Reset: %w", err)
	}
	if err := s.repo.Delete(ctx, key); err != nil {
		return fmt.Errorf("service.StateService.Reset: %w", err)
	}
	return nil
}
