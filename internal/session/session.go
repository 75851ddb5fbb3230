// Package session obtains the device's anonymous session token from the
// TripMate server and caches it between runs.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zalando/go-keyring"
)

const keyringService = "tripmate"

var (
	// ErrNotFound is returned when no token is cached.
	ErrNotFound = errors.New("session token not found")
	// ErrKeyringUnavailable is returned when the OS keyring cannot be used.
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
)

// Cache stores a token per server.
type Cache interface {
	Get(server string) (string, error)
	Set(server, token string) error
	Delete(server string) error
}

// Keyring caches tokens in the OS keyring.
type Keyring struct{}

func (Keyring) Get(server string) (string, error) {
	tok, err := keyring.Get(keyringService, server)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return tok, nil
}

func (Keyring) Set(server, token string) error {
	if err := keyring.Set(keyringService, server, token); err != nil {
		return fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return nil
}

func (Keyring) Delete(server string) error {
	err := keyring.Delete(keyringService, server)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return nil
}

// KV is a plain key/value store, such as the local SQLite store.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// KVCache caches tokens in a KV store. It is used where no keyring exists.
type KVCache struct {
	KV KV
}

func kvKey(server string) string { return "tripmate.session:" + server }

func (c KVCache) Get(server string) (string, error) {
	tok, ok, err := c.KV.Get(context.Background(), kvKey(server))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotFound
	}
	return tok, nil
}

func (c KVCache) Set(server, token string) error {
	return c.KV.Set(context.Background(), kvKey(server), token)
}

func (c KVCache) Delete(server string) error {
	return c.KV.Delete(context.Background(), kvKey(server))
}

// Fallback reads from and writes to Primary, switching to Secondary when
// Primary is unavailable.
type Fallback struct {
	Primary, Secondary Cache
}

func (f Fallback) Get(server string) (string, error) {
	tok, err := f.Primary.Get(server)
	if err == nil || (errors.Is(err, ErrNotFound) && !f.hasSecondary()) {
		return tok, err
	}
	return f.Secondary.Get(server)
}

func (f Fallback) Set(server, token string) error {
	if err := f.Primary.Set(server, token); err == nil || !f.hasSecondary() {
		return err
	}
	return f.Secondary.Set(server, token)
}

func (f Fallback) Delete(server string) error {
	err := f.Primary.Delete(server)
	if f.hasSecondary() {
		return errors.Join(err, f.Secondary.Delete(server))
	}
	return err
}

func (f Fallback) hasSecondary() bool { return f.Secondary != nil }

// Source hands out the session token, fetching a new one from the server
// when none is cached or the cached one has expired. It implements
// remote.TokenSource.
type Source struct {
	server string
	client *http.Client
	cache  Cache
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	token    string
	disabled bool
}

// NewSource returns a Source for the server at baseURL.
func NewSource(baseURL string, cache Cache, client *http.Client, logger *slog.Logger) *Source {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		server: strings.TrimRight(baseURL, "/"),
		client: client,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// Token returns a usable token. It returns an empty token and no error when
// the server does not issue sessions.
func (s *Source) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disabled {
		return "", nil
	}
	if s.token != "" && !s.expired(s.token) {
		return s.token, nil
	}
	if s.token == "" && s.cache != nil {
		tok, err := s.cache.Get(s.server)
		switch {
		case err == nil && !s.expired(tok):
			s.token = tok
			return tok, nil
		case err != nil && !errors.Is(err, ErrNotFound):
			s.logger.WarnContext(ctx, "session cache read failed", "error", err)
		}
	}

	tok, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}
	if tok == "" {
		s.disabled = true
		return "", nil
	}
	s.token = tok
	if s.cache != nil {
		if err := s.cache.Set(s.server, tok); err != nil {
			s.logger.WarnContext(ctx, "session cache write failed", "error", err)
		}
	}
	return tok, nil
}

// Forget drops the token from memory and the cache.
func (s *Source) Forget() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.disabled = false
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(s.server)
}

type sessionResponse struct {
	Token     string `json:"token"`
	SessionID string `json:"sessionId"`
}

func (s *Source) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.server+"/v1/session", nil)
	if err != nil {
		return "", fmt.Errorf("session.Source.fetch: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("session.Source.fetch: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
	case http.StatusNotFound:
		// Server runs without sessions.
		return "", nil
	default:
		return "", fmt.Errorf("session.Source.fetch: status %d", resp.StatusCode)
	}

	var body sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("session.Source.fetch: decode: %w", err)
	}
	if body.Token == "" {
		return "", errors.New("session.Source.fetch: empty token")
	}
	s.logger.DebugContext(ctx, "new session", "session", body.SessionID)
	return body.Token, nil
}

// expired reads the token's exp claim without verifying the signature; the
// server does that. Tokens expiring within a minute count as expired.
func (s *Source) expired(tok string) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !s.now().Add(time.Minute).Before(claims.ExpiresAt.Time)
}
