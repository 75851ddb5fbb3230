// Package cli holds the tripmate device commands. Each command is a kong
// struct with a Run(*Context) method.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkordes/tripmate/internal/config"
	"github.com/pkordes/tripmate/internal/domain"
	"github.com/pkordes/tripmate/internal/identity"
	"github.com/pkordes/tripmate/internal/localstore"
	"github.com/pkordes/tripmate/internal/logger"
	"github.com/pkordes/tripmate/internal/rates"
	"github.com/pkordes/tripmate/internal/reconcile"
	"github.com/pkordes/tripmate/internal/remote"
	"github.com/pkordes/tripmate/internal/session"
	"github.com/pkordes/tripmate/internal/weather"
)

// Globals are the flags shared by every command. Set flags override the
// config file.
type Globals struct {
	Config   string        `help:"Config file path." default:"${config_path}" env:"TRIPMATE_CONFIG"`
	Trip     string        `help:"Trip id or share link to join." env:"TRIPMATE_TRIP"`
	User     string        `help:"Scope the trip to this user id." env:"TRIPMATE_USER"`
	Server   string        `help:"TripMate server URL." env:"TRIPMATE_SERVER"`
	DataDir  string        `help:"Directory for the local copy and logs." env:"TRIPMATE_DATA_DIR"`
	Debounce time.Duration `help:"Quiet period before edits are published (e.g. 800ms)."`
	Debug    bool          `help:"Mirror logs to stderr."`
}

// Context is passed to every command's Run.
type Context struct {
	Ctx     context.Context
	Out     io.Writer
	Config  config.Client
	Key     domain.TripKey
	Logger  *slog.Logger
	Local   *localstore.Store
	Remote  remote.Store
	API     *APIClient
	Rates   *rates.Client
	Weather *weather.Client
	Now     func() time.Time

	trip    *reconcile.Controller
	closers []io.Closer
}

// Open loads configuration, opens the local store and resolves the trip key.
// The remote store is not contacted until a command asks for the trip.
func Open(ctx context.Context, g Globals, out io.Writer) (*Context, error) {
	cfg, err := config.LoadClient(g.Config)
	if err != nil {
		return nil, err
	}
	if g.Server != "" {
		cfg.ServerURL = strings.TrimRight(g.Server, "/")
	}
	if g.User != "" {
		cfg.UserID = g.User
	}
	if g.DataDir != "" {
		cfg.DataDir = g.DataDir
	}
	if g.Debounce > 0 {
		cfg.Debounce = g.Debounce
	}

	log, logCloser, err := logger.New(logger.Config{Debug: g.Debug, DataDir: cfg.DataDir})
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	c := &Context{Ctx: ctx, Out: out, Config: cfg, Logger: log, Now: time.Now}
	c.closers = append(c.closers, logCloser)

	local, err := localstore.Open(ctx, filepath.Join(cfg.DataDir, "tripmate.db"), log)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Local = local
	c.closers = append(c.closers, local)

	resolver := &identity.Resolver{Override: g.Trip, UserID: cfg.UserID, Store: local, Logger: log}
	if c.Key, err = resolver.Resolve(ctx); err != nil {
		c.Close()
		return nil, err
	}

	tokens := session.NewSource(cfg.ServerURL, session.Fallback{
		Primary:   session.Keyring{},
		Secondary: session.KVCache{KV: local},
	}, nil, log)
	store, err := remote.NewHTTPStore(remote.HTTPConfig{BaseURL: cfg.ServerURL, Tokens: tokens, Logger: log})
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Remote = store
	c.API = NewAPIClient(cfg.ServerURL, tokens, nil)
	c.Rates = rates.NewClient(cfg.RatesURL, nil)
	c.Weather = weather.NewClient("", nil)
	return c, nil
}

// Trip returns the started reconciliation controller, creating it on first
// use.
func (c *Context) Trip() (*reconcile.Controller, error) {
	if c.trip != nil {
		return c.trip, nil
	}
	ctrl, err := reconcile.New(c.Ctx, reconcile.Config{
		Key:      c.Key,
		Local:    c.Local,
		Remote:   c.Remote,
		Debounce: c.Config.Debounce,
		Logger:   c.Logger,
	})
	if err != nil {
		return nil, err
	}
	if err := ctrl.Start(c.Ctx); err != nil {
		ctrl.Close()
		return nil, err
	}
	c.trip = ctrl
	return ctrl, nil
}

// State returns the current trip state.
func (c *Context) State() (domain.TripState, error) {
	ctrl, err := c.Trip()
	if err != nil {
		return domain.TripState{}, err
	}
	return ctrl.State(), nil
}

// Commit applies fn as a local edit and publishes it before returning, so a
// short-lived process does not exit with the edit still queued.
func (c *Context) Commit(fn func(*domain.TripState) error) error {
	ctrl, err := c.Trip()
	if err != nil {
		return err
	}
	if err := ctrl.Update(fn); err != nil {
		return err
	}
	ctrl.Flush()
	return nil
}

// Close stops the controller and releases local resources.
func (c *Context) Close() error {
	if c.trip != nil {
		c.trip.Close()
		c.trip = nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i].Close())
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Context) printf(format string, args ...any) {
	fmt.Fprintf(c.Out, format, args...)
}

func (c *Context) println(args ...any) {
	fmt.Fprintln(c.Out, args...)
}

func (c *Context) today() string {
	return c.Now().Format("2006-01-02")
}

// parseDate accepts YYYY-MM-DD; empty means today.
func (c *Context) parseDate(s string) (time.Time, error) {
	if s == "" {
		s = c.today()
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q is not YYYY-MM-DD", domain.ErrValidation, s)
	}
	return t, nil
}

// ExitCode maps a command error to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrNotFound):
		return 2
	}
	return 1
}
