package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/pkordes/tripmate/internal/domain"
)

// loader is the slice of repo.StateRepo that Fanout needs.
type loader interface {
	Get(ctx context.Context, key string) (domain.Document, error)
}

// Fanout turns change notifications into document pushes. Rooms without
// subscribers are skipped so idle keys cost no reads.
type Fanout struct {
	listener Listener
	store    loader
	hub      *Hub
	logger   *slog.Logger
}

func NewFanout(l Listener, store loader, hub *Hub, logger *slog.Logger) *Fanout {
	return &Fanout{listener: l, store: store, hub: hub, logger: logger}
}

// Run blocks until ctx is cancelled or the listener fails.
func (f *Fanout) Run(ctx context.Context) error {
	return f.listener.Listen(ctx, func(key string) {
		f.deliver(ctx, key)
	})
}

func (f *Fanout) deliver(ctx context.Context, key string) {
	if f.hub.Subscribers(key) == 0 {
		return
	}
	doc, err := f.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			f.logger.WarnContext(ctx, "fanout: reload failed", "key", key, "error", err)
		}
		return
	}
	data, err := json.Marshal(doc)
	if err != nil {
		f.logger.ErrorContext(ctx, "fanout: encode failed", "key", key, "error", err)
		return
	}
	f.hub.Broadcast(ctx, key, data)
}
