package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pkordes/tripmate/internal/domain"
)

// TokenSource supplies the anonymous session token sent with every request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// HTTPConfig configures an HTTPStore.
type HTTPConfig struct {
	// BaseURL of the TripMate API, e.g. "https://tripmate.example.com".
	BaseURL string
	Client  *http.Client
	Tokens  TokenSource
	Logger  *slog.Logger
	// MinBackoff and MaxBackoff bound the delay between subscription
	// reconnect attempts. Default 1s and 30s.
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// HTTPStore talks to cmd/api over JSON and a websocket.
type HTTPStore struct {
	base       *url.URL
	client     *http.Client
	dialer     *websocket.Dialer
	tokens     TokenSource
	logger     *slog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

var _ Store = (*HTTPStore)(nil)

func NewHTTPStore(cfg HTTPConfig) (*HTTPStore, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("remote.NewHTTPStore: base URL %q must be http(s)", cfg.BaseURL)
	}
	s := &HTTPStore{
		base:       base,
		client:     cfg.Client,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		tokens:     cfg.Tokens,
		logger:     cfg.Logger,
		minBackoff: cfg.MinBackoff,
		maxBackoff: cfg.MaxBackoff,
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: 15 * time.Second}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.minBackoff <= 0 {
		s.minBackoff = time.Second
	}
	if s.maxBackoff < s.minBackoff {
		s.maxBackoff = max(30*time.Second, s.minBackoff)
	}
	return s, nil
}

func (s *HTTPStore) stateURL(key domain.TripKey) string {
	u := *s.base
	u.Path += "/v1/trips/" + url.PathEscape(key.Address()) + "/state"
	return u.String()
}

func (s *HTTPStore) authorize(ctx context.Context, h http.Header) {
	if s.tokens == nil {
		return
	}
	tok, err := s.tokens.Token(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "no session token, continuing anonymously", "error", err)
		return
	}
	if tok != "" {
		h.Set("Authorization", "Bearer "+tok)
	}
}

// Load implements Store.
func (s *HTTPStore) Load(ctx context.Context, key domain.TripKey) (*domain.TripState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.stateURL(key), nil)
	if err != nil {
		return nil, fmt.Errorf("remote.HTTPStore.Load: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	s.authorize(ctx, req.Header)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote.HTTPStore.Load: %w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote.HTTPStore.Load: %w: %s", ErrBackend, statusError(resp))
	}

	var doc domain.Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("remote.HTTPStore.Load: %w: decode: %v", ErrBackend, err)
	}
	return &doc.State, nil
}

// Save implements Store.
func (s *HTTPStore) Save(ctx context.Context, key domain.TripKey, state domain.TripState) error {
	body, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("remote.HTTPStore.Save: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.stateURL(key), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("remote.HTTPStore.Save: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.authorize(ctx, req.Header)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote.HTTPStore.Save: %w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("remote.HTTPStore.Save: %w: %s", ErrBackend, statusError(resp))
	}
	//nolint:errcheck // drain so the connection is reused
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Subscribe implements Store. The first connection is made before Subscribe
// returns; if it fails the error is returned and nothing runs in the
// background. Later drops are retried with capped exponential backoff, and
// after each reconnect the document is reloaded so changes made while
// disconnected are still delivered.
func (s *HTTPStore) Subscribe(ctx context.Context, key domain.TripKey, onChange func(domain.TripState)) (func(), error) {
	conn, err := s.dial(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("remote.HTTPStore.Subscribe: %w", err)
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &subscription{conn: conn, cancel: cancel}

	go s.run(subCtx, key, sub, onChange)
	return sub.close, nil
}

func (s *HTTPStore) dial(ctx context.Context, key domain.TripKey) (*websocket.Conn, error) {
	u := *s.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path += "/v1/trips/" + url.PathEscape(key.Address()) + "/state/subscribe"

	header := http.Header{}
	s.authorize(ctx, header)

	conn, resp, err := s.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: subscribe handshake: %s", ErrBackend, resp.Status)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return conn, nil
}

func (s *HTTPStore) run(ctx context.Context, key domain.TripKey, sub *subscription, onChange func(domain.TripState)) {
	backoff := s.minBackoff
	conn := sub.current()
	for {
		if conn != nil {
			s.read(ctx, conn, onChange)
			conn.Close()
			backoff = s.minBackoff
		}
		if ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, s.maxBackoff)

		next, err := s.dial(ctx, key)
		if err != nil {
			s.logger.WarnContext(ctx, "subscription reconnect failed", "key", key.Address(), "error", err, "retry_in", backoff)
			conn = nil
			continue
		}
		if !sub.swap(next) {
			next.Close()
			return
		}
		conn = next
		s.logger.InfoContext(ctx, "subscription reconnected", "key", key.Address())

		state, err := s.Load(ctx, key)
		if err != nil {
			s.logger.WarnContext(ctx, "catch-up load failed", "key", key.Address(), "error", err)
		} else if state != nil {
			onChange(*state)
		}
	}
}

// read delivers documents until the connection fails or is closed.
func (s *HTTPStore) read(ctx context.Context, conn *websocket.Conn, onChange func(domain.TripState)) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.logger.WarnContext(ctx, "subscription dropped", "error", err)
			}
			return
		}
		var doc domain.Document
		if err := json.Unmarshal(data, &doc); err != nil {
			s.logger.WarnContext(ctx, "subscription: undecodable document ignored", "error", err)
			continue
		}
		onChange(doc.State)
	}
}

type subscription struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	cancel context.CancelFunc
}

func (s *subscription) current() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// swap installs a reconnected conn. It reports false once closed.
func (s *subscription) swap(c *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conn = c
	return true
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
	if s.conn != nil {
		s.conn.Close()
	}
}

func statusError(resp *http.Response) string {
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Code != "" {
		return fmt.Sprintf("%d %s: %s", resp.StatusCode, body.Error.Code, body.Error.Message)
	}
	return resp.Status
}
