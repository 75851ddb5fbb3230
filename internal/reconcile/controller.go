// Package reconcile keeps one device's trip state in step with the shared
// remote document. Local edits are persisted at once and published after a
// quiet period; remote changes replace local state wholesale.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pkordes/tripmate/internal/debounce"
	"github.com/pkordes/tripmate/internal/domain"
	"github.com/pkordes/tripmate/internal/remote"
	"github.com/pkordes/tripmate/internal/weather"
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("controller closed")

// Phase is the controller's lifecycle stage.
type Phase int

const (
	Booting Phase = iota
	Hydrating
	Live
)

func (p Phase) String() string {
	switch p {
	case Booting:
		return "booting"
	case Hydrating:
		return "hydrating"
	case Live:
		return "live"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Mode says what the controller is doing with the remote store right now.
type Mode int

const (
	Idle Mode = iota
	ApplyingRemote
	Publishing
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case ApplyingRemote:
		return "applying-remote"
	case Publishing:
		return "publishing"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Origin tells observers where a state change came from.
type Origin int

const (
	OriginLocal Origin = iota
	OriginRemote
)

func (o Origin) String() string {
	if o == OriginRemote {
		return "remote"
	}
	return "local"
}

// Persister is the device-local copy of the trip state.
type Persister interface {
	Persist(ctx context.Context, state domain.TripState)
	Restore(ctx context.Context, fallback domain.TripState) domain.TripState
}

// Observer is called after every committed change, outside the
// controller's lock. An observer reacting to a remote change should edit
// through UpdateContext with the ctx it was given; such edits are kept but
// not published back.
type Observer func(ctx context.Context, state domain.TripState, origin Origin)

// applyingKey marks a context handed to observers during a remote apply.
type applyingKey struct{}

// Config wires a Controller.
type Config struct {
	Key         domain.TripKey
	Local       Persister
	Remote      remote.Store
	Debounce    time.Duration
	SaveTimeout time.Duration
	Logger      *slog.Logger
}

const defaultSaveTimeout = 15 * time.Second

// edit is a local state waiting to be published. seq orders local edits.
type edit struct {
	state domain.TripState
	seq   uint64
}

// Controller owns the in-memory trip state for one device.
type Controller struct {
	key         domain.TripKey
	local       Persister
	remote      remote.Store
	saveTimeout time.Duration
	logger      *slog.Logger
	pub         *debounce.Debouncer[edit]

	mu            sync.Mutex
	state         domain.TripState
	phase         Phase
	applying      int
	publishing    int
	seq           uint64
	publishedSeq  uint64
	lastPublished *domain.TripState
	observers     map[int]Observer
	nextObserver  int
	unsubscribe   func()
	closed        bool

	weather      *weather.Snapshot
	budgetTarget *decimal.Decimal
}

// New restores local state, falling back to the seed, and returns a
// Booting controller. Nothing touches the remote store until Start.
func New(ctx context.Context, cfg Config) (*Controller, error) {
	if err := cfg.Key.Validate(); err != nil {
		return nil, fmt.Errorf("reconcile.New: %w", err)
	}
	if cfg.Local == nil || cfg.Remote == nil {
		return nil, errors.New("reconcile.New: local and remote stores are required")
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = defaultSaveTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Controller{
		key:         cfg.Key,
		local:       cfg.Local,
		remote:      cfg.Remote,
		saveTimeout: cfg.SaveTimeout,
		logger:      cfg.Logger.With("trip", cfg.Key.String()),
		observers:   make(map[int]Observer),
	}
	c.state = cfg.Local.Restore(ctx, domain.Defaults())
	c.pub = debounce.New(cfg.Debounce, c.publish, c.logger)
	return c, nil
}

// Start hydrates from the remote store and subscribes to changes. Remote
// failures are logged and leave the device working on local state; only
// ErrClosed is returned.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.phase = Hydrating
	c.mu.Unlock()

	c.hydrate(ctx)

	c.mu.Lock()
	c.phase = Live
	c.mu.Unlock()

	unsub, err := c.remote.Subscribe(ctx, c.key, c.applyRemote)
	if err != nil {
		c.logger.Warn("subscribe failed, staying local-only", "error", err)
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		unsub()
		return ErrClosed
	}
	c.unsubscribe = unsub
	c.mu.Unlock()

	c.logger.Info("live")
	return nil
}

func (c *Controller) hydrate(ctx context.Context) {
	got, err := c.remote.Load(ctx, c.key)
	if err != nil {
		c.logger.Warn("remote load failed, keeping local state", "error", err)
		return
	}
	if got != nil {
		incoming := *got
		domain.Normalize(&incoming)
		err := domain.Validate(incoming)
		if err == nil {
			c.applyRemote(incoming)
			return
		}
		c.logger.Warn("remote document invalid, treating as absent", "error", err)
	}

	// Nothing usable remotely: seed it with what this device has.
	c.mu.Lock()
	snapshot := edit{state: c.state.Clone(), seq: c.seq}
	c.mu.Unlock()
	if err := c.save(snapshot); err != nil {
		c.logger.Warn("remote seed failed", "error", err)
		return
	}
	c.logger.Info("seeded remote document")
}

// applyRemote replaces local state with a remote document. It never
// schedules a publish.
func (c *Controller) applyRemote(incoming domain.TripState) {
	domain.Normalize(&incoming)
	if err := domain.Validate(incoming); err != nil {
		c.logger.Warn("ignoring invalid remote state", "error", err)
		return
	}

	c.mu.Lock()
	if c.closed || domain.Equal(c.state, incoming) {
		c.mu.Unlock()
		return
	}
	// Our own earlier save echoing back after a newer local edit.
	if c.lastPublished != nil && c.publishedSeq < c.seq && domain.Equal(*c.lastPublished, incoming) {
		c.mu.Unlock()
		c.logger.Debug("dropping stale echo of own save")
		return
	}
	c.applying++
	c.state = incoming
	c.local.Persist(context.Background(), incoming)
	observers := c.observerList()
	c.mu.Unlock()

	c.notify(context.WithValue(context.Background(), applyingKey{}, c), observers, incoming.Clone(), OriginRemote)

	c.mu.Lock()
	c.applying--
	c.mu.Unlock()
	c.logger.Debug("applied remote state")
}

// Update is the single entry point for local edits. fn edits a copy; the
// result is normalised and validated before it replaces the current state.
// A failing fn or an invalid result leaves state untouched. An edit that
// changes nothing is not persisted or published. fn runs under the
// controller's lock and must not call back into it.
func (c *Controller) Update(fn func(*domain.TripState) error) error {
	return c.UpdateContext(context.Background(), fn)
}

// UpdateContext is Update for observers. When ctx is the one an observer
// received for a remote change, the edit is committed and persisted but not
// published. Edits from anywhere else publish as usual, even while a remote
// change is being applied.
func (c *Controller) UpdateContext(ctx context.Context, fn func(*domain.TripState) error) error {
	reentrant := ctx.Value(applyingKey{}) == c

	c.mu.Lock()
	next := c.state.Clone()
	if err := fn(&next); err != nil {
		c.mu.Unlock()
		return err
	}
	domain.Normalize(&next)
	if err := domain.Validate(next); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("reconcile.Controller.Update: %w", err)
	}
	if domain.Equal(c.state, next) {
		c.mu.Unlock()
		return nil
	}
	c.state = next
	c.local.Persist(context.Background(), next)
	if !reentrant && !c.closed {
		c.seq++
		c.pub.Call(edit{state: next.Clone(), seq: c.seq})
	}
	observers := c.observerList()
	c.mu.Unlock()

	c.notify(ctx, observers, next.Clone(), OriginLocal)
	return nil
}

// Replace swaps in a whole new state, as reset and import do.
func (c *Controller) Replace(state domain.TripState) error {
	return c.Update(func(s *domain.TripState) error {
		*s = state.Clone()
		return nil
	})
}

func (c *Controller) publish(_ context.Context, e edit) error {
	if err := c.save(e); err != nil {
		return fmt.Errorf("reconcile.Controller.publish: %w", err)
	}
	return nil
}

// save writes state to the remote store in Publishing mode. The lock is not
// held across the call; a synchronous echo re-enters applyRemote.
func (c *Controller) save(e edit) error {
	c.mu.Lock()
	c.publishing++
	c.lastPublished = &e.state
	c.publishedSeq = e.seq
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.publishing--
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), c.saveTimeout)
	defer cancel()
	return c.remote.Save(ctx, c.key, e.state.Clone())
}

// observerList must be called with mu held.
func (c *Controller) observerList() []Observer {
	out := make([]Observer, 0, len(c.observers))
	for i := 0; i < c.nextObserver; i++ {
		if fn, ok := c.observers[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func (c *Controller) notify(ctx context.Context, observers []Observer, state domain.TripState, origin Origin) {
	for _, fn := range observers {
		fn(ctx, state.Clone(), origin)
	}
}

// Observe registers fn for every committed change and returns a function
// that removes it.
func (c *Controller) Observe(fn Observer) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextObserver
	c.nextObserver++
	c.observers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

// State returns a copy of the current state.
func (c *Controller) State() domain.TripState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.applying > 0:
		return ApplyingRemote
	case c.publishing > 0:
		return Publishing
	}
	return Idle
}

func (c *Controller) Key() domain.TripKey { return c.key }

// Flush publishes a pending edit now. It reports whether there was one.
func (c *Controller) Flush() bool {
	return c.pub.Flush()
}

// Close ends the subscription and drops any unpublished edit; the local
// copy already holds it.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	c.pub.Stop()
}

// SetWeather stores the session's forecast. It is never synchronised.
func (c *Controller) SetWeather(s weather.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.weather = &s
}

func (c *Controller) Weather() (weather.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.weather == nil {
		return weather.Snapshot{}, false
	}
	return *c.weather, true
}

// SetBudgetTarget stores a per-session GBP budget target.
func (c *Controller) SetBudgetTarget(gbp decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.budgetTarget = &gbp
}

func (c *Controller) BudgetTarget() (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.budgetTarget == nil {
		return decimal.Zero, false
	}
	return *c.budgetTarget, true
}
