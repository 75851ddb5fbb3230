// Package identity works out which shared trip document this device addresses.
package identity

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/pkordes/tripmate/internal/domain"
)

// TripIDKey is the local storage key holding the adopted trip id.
const TripIDKey = "tripmate.tripId"

// ShareParam is the query parameter a share link carries the trip id in.
const ShareParam = "trip"

const (
	generatedPrefix = "trip_"
	generatedLen    = 8
	alphabet        = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// KV is the subset of the local store the resolver needs.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Resolver returns a stable TripKey for the lifetime of the process.
type Resolver struct {
	// Override is a trip id or share link supplied on the command line.
	Override string
	// UserID, when set, composes the key as "user:trip".
	UserID string
	Store  KV
	Logger *slog.Logger

	once sync.Once
	key  domain.TripKey
	err  error
}

// Resolve returns the trip key, computing it on first call:
//  1. an Override wins and is persisted, so a shared link takes the device over;
//  2. otherwise a previously persisted id is used;
//  3. otherwise a new id is generated and persisted.
//
// Later calls return the first result. Persist failures are logged; the
// resolved id is still returned.
func (r *Resolver) Resolve(ctx context.Context) (domain.TripKey, error) {
	r.once.Do(func() {
		r.key, r.err = r.resolve(ctx)
	})
	return r.key, r.err
}

func (r *Resolver) resolve(ctx context.Context) (domain.TripKey, error) {
	if override := strings.TrimSpace(r.Override); override != "" {
		id, err := ParseShared(override)
		if err != nil {
			return domain.TripKey{}, fmt.Errorf("identity.Resolver.Resolve: %w", err)
		}
		r.persist(ctx, id)
		return r.compose(id)
	}

	if r.Store != nil {
		id, ok, err := r.Store.Get(ctx, TripIDKey)
		if err != nil {
			r.logger().WarnContext(ctx, "read trip id", "error", err)
		} else if ok {
			id = strings.TrimSpace(id)
			if err := (domain.TripKey{TripID: id}).Validate(); err == nil {
				return r.compose(id)
			}
			if id != "" {
				r.logger().WarnContext(ctx, "stored trip id is unusable, generating a new one", "id", id)
			}
		}
	}

	id, err := Generate()
	if err != nil {
		return domain.TripKey{}, fmt.Errorf("identity.Resolver.Resolve: %w", err)
	}
	r.persist(ctx, id)
	return r.compose(id)
}

func (r *Resolver) compose(tripID string) (domain.TripKey, error) {
	k := domain.TripKey{TripID: tripID, UserID: strings.TrimSpace(r.UserID)}
	if err := k.Validate(); err != nil {
		return domain.TripKey{}, fmt.Errorf("identity.Resolver.Resolve: %w", err)
	}
	return k, nil
}

func (r *Resolver) persist(ctx context.Context, id string) {
	if r.Store == nil {
		return
	}
	if err := r.Store.Set(ctx, TripIDKey, id); err != nil {
		r.logger().WarnContext(ctx, "persist trip id", "error", err)
	}
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// Generate returns "trip_" followed by 8 random lowercase alphanumerics,
// each drawn uniformly from the alphabet.
func Generate() (string, error) {
	// Bytes at or above limit would favour the first letters; they are redrawn.
	const limit = 256 - 256%len(alphabet)

	out := make([]byte, 0, generatedLen)
	buf := make([]byte, generatedLen*2)
	for len(out) < generatedLen {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate trip id: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == generatedLen {
				break
			}
		}
	}
	return generatedPrefix + string(out), nil
}

// ParseShared accepts a bare trip id or a link carrying ?trip=<id> and
// returns the trip id.
func ParseShared(s string) (string, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "://") || strings.HasPrefix(s, "?") {
		u, err := url.Parse(s)
		if err != nil {
			return "", fmt.Errorf("%w: share link: %v", domain.ErrValidation, err)
		}
		id := strings.TrimSpace(u.Query().Get(ShareParam))
		if id == "" {
			return "", fmt.Errorf("%w: share link has no %q parameter", domain.ErrValidation, ShareParam)
		}
		s = id
	}
	if err := (domain.TripKey{TripID: s}).Validate(); err != nil {
		return "", err
	}
	return s, nil
}

// ShareLink returns the link a second device opens (or passes to --trip) to
// join key's trip. The user part of the key is not shared.
func ShareLink(base string, key domain.TripKey) string {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" {
		u = &url.URL{Scheme: "https", Host: strings.Trim(base, "/")}
	}
	q := u.Query()
	q.Set(ShareParam, key.TripID)
	u.RawQuery = q.Encode()
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}
