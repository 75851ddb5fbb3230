package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/tripmate/internal/domain"
)

func TestTripKey_Address(t *testing.T) {
	assert.Equal(t, "trip_ab12cd34", domain.TripKey{TripID: "trip_ab12cd34"}.Address())
	assert.Equal(t, "alice:trip_ab12cd34", domain.TripKey{TripID: "trip_ab12cd34", UserID: "alice"}.Address())
}

func TestParseTripKey(t *testing.T) {
	k, err := domain.ParseTripKey("alice:trip_1")
	require.NoError(t, err)
	assert.Equal(t, domain.TripKey{TripID: "trip_1", UserID: "alice"}, k)

	k, err = domain.ParseTripKey("trip_1")
	require.NoError(t, err)
	assert.Equal(t, domain.TripKey{TripID: "trip_1"}, k)
}

func TestParseTripKey_Invalid(t *testing.T) {
	for _, addr := range []string{"", "alice:", "has space", "a/b", "a:b:c"} {
		_, err := domain.ParseTripKey(addr)
		assert.ErrorIs(t, err, domain.ErrValidation, "address %q", addr)
	}
}
