package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// addressPattern bounds what a trip address may contain. Addresses appear in
// URL paths, notification channel names and local storage keys.
var addressPattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]{1,64}(:[A-Za-z0-9_.\-]{1,64})?$`)

// TripKey addresses one shared document in the remote store.
// UserID is optional; when set the address is "user:trip".
type TripKey struct {
	TripID string
	UserID string
}

// Address returns the string form of k used as the remote row key.
func (k TripKey) Address() string {
	if k.UserID == "" {
		return k.TripID
	}
	return k.UserID + ":" + k.TripID
}

// String implements fmt.Stringer.
func (k TripKey) String() string {
	return k.Address()
}

// Validate reports whether k can address a document.
func (k TripKey) Validate() error {
	if strings.TrimSpace(k.TripID) == "" {
		return fmt.Errorf("%w: trip id is required", ErrValidation)
	}
	if !addressPattern.MatchString(k.Address()) {
		return fmt.Errorf("%w: trip key %q contains unsupported characters", ErrValidation, k.Address())
	}
	return nil
}

// ParseTripKey is the inverse of TripKey.Address.
func ParseTripKey(addr string) (TripKey, error) {
	var k TripKey
	if user, trip, ok := strings.Cut(addr, ":"); ok {
		k = TripKey{TripID: trip, UserID: user}
	} else {
		k = TripKey{TripID: addr}
	}
	if err := k.Validate(); err != nil {
		return TripKey{}, err
	}
	return k, nil
}

// Document is the remote row for one trip: the full state plus the
// server-side time of the last write.
type Document struct {
	Key       string    `json:"key"`
	State     TripState `json:"state"`
	UpdatedAt time.Time `json:"updatedAt"`
}
