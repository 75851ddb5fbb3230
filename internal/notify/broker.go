package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Channel is the Postgres NOTIFY channel the trip_state trigger writes to.
// Redis channels are Channel + ":" + key.
const Channel = "trip_state"

// Listener blocks until ctx is cancelled, calling fn with the trip key of
// every document that is created or updated.
type Listener interface {
	Listen(ctx context.Context, fn func(key string)) error
}

// Publisher announces that the document under key changed.
type Publisher interface {
	Publish(ctx context.Context, key string) error
}

// PGListener listens on the channel fed by the trip_state trigger. Every
// writer to the table is observed, including ones outside this process.
// There is no Publish: the trigger does it inside the writing transaction.
type PGListener struct {
	pool       *pgxpool.Pool
	logger     *slog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewPGListener(pool *pgxpool.Pool, logger *slog.Logger) *PGListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGListener{pool: pool, logger: logger, minBackoff: time.Second, maxBackoff: 30 * time.Second}
}

// Listen re-acquires a connection and re-issues LISTEN whenever the
// listening connection is lost, backing off between attempts. It returns
// only when ctx is cancelled.
func (l *PGListener) Listen(ctx context.Context, fn func(key string)) error {
	backoff := l.minBackoff
	for {
		listening, err := l.listen(ctx, fn)
		if ctx.Err() != nil {
			return nil
		}
		if listening {
			backoff = l.minBackoff
		}
		l.logger.WarnContext(ctx, "notify: listener lost, reconnecting", "error", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, l.maxBackoff)
	}
}

// listen runs one LISTEN session. listening reports whether LISTEN succeeded
// before the session ended.
func (l *PGListener) listen(ctx context.Context, fn func(key string)) (listening bool, err error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("notify.PGListener.Listen: acquire: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return false, fmt.Errorf("notify.PGListener.Listen: %w", err)
	}
	l.logger.DebugContext(ctx, "notify: listening", "channel", Channel)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return true, fmt.Errorf("notify.PGListener.Listen: wait: %w", err)
		}
		fn(n.Payload)
	}
}

// RedisBroker fans notifications out across API replicas through Redis
// pub/sub. It is the broker to use with the MongoDB store.
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Publish(ctx context.Context, key string) error {
	if err := b.client.Publish(ctx, Channel+":"+key, key).Err(); err != nil {
		return fmt.Errorf("notify.RedisBroker.Publish: %w", err)
	}
	return nil
}

func (b *RedisBroker) Listen(ctx context.Context, fn func(key string)) error {
	sub := b.client.PSubscribe(ctx, Channel+":*")
	defer sub.Close()

	// Wait for the subscription to be confirmed so no publish is missed.
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("notify.RedisBroker.Listen: subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			fn(msg.Payload)
		}
	}
}

// LocalBroker is an in-process Listener and Publisher for a single node.
type LocalBroker struct {
	mu      sync.Mutex
	next    int
	targets map[int]chan string
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{targets: make(map[int]chan string)}
}

func (b *LocalBroker) Publish(ctx context.Context, key string) error {
	b.mu.Lock()
	targets := make([]chan string, 0, len(b.targets))
	for _, ch := range b.targets {
		targets = append(targets, ch)
	}
	b.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- key:
		case <-ctx.Done():
			return fmt.Errorf("notify.LocalBroker.Publish: %w", ctx.Err())
		}
	}
	return nil
}

func (b *LocalBroker) Listen(ctx context.Context, fn func(key string)) error {
	ch := make(chan string, 64)

	b.mu.Lock()
	id := b.next
	b.next++
	b.targets[id] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.targets, id)
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case key := <-ch:
			fn(key)
		}
	}
}

// Listeners returns the number of active Listen calls.
func (b *LocalBroker) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.targets)
}
