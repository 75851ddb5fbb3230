// Package remote is the device's view of the shared trip document: point
// read, whole-document upsert and a change subscription.
package remote

import (
	"context"
	"errors"

	"github.com/pkordes/tripmate/internal/domain"
)

var (
	// ErrUnavailable means the store could not be reached at all.
	ErrUnavailable = errors.New("remote store unavailable")
	// ErrBackend means the store answered but the answer was an error or
	// could not be decoded.
	ErrBackend = errors.New("remote store error")
)

// Store is the remote document store for trips. Writes are last-writer-wins
// over the whole document.
type Store interface {
	// Load returns the stored state, or nil with no error when nothing has
	// been saved under key yet.
	Load(ctx context.Context, key domain.TripKey) (*domain.TripState, error)
	// Save creates or fully replaces the document under key.
	Save(ctx context.Context, key domain.TripKey, state domain.TripState) error
	// Subscribe calls onChange with the new state whenever any writer,
	// including this device, creates or updates key. onChange may run on
	// another goroutine.
	// The returned function ends the subscription; it may be called any
	// number of times.
	Subscribe(ctx context.Context, key domain.TripKey, onChange func(domain.TripState)) (unsubscribe func(), err error)
}
