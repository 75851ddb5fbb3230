package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/tripmate/internal/domain"
	"github.com/pkordes/tripmate/internal/repo"
	"github.com/pkordes/tripmate/testutil"
)

// newTestRepo opens a transaction against the test database and returns a
// StateRepo backed by that transaction. The transaction is rolled back when
// the test finishes, giving free per-test isolation.
//
// Requires TEST_DATABASE_URL to be set; TestMain applies the migrations.
func newTestRepo(t *testing.T) repo.StateRepo {
	t.Helper()
	pool := testutil.NewPool(t)

	tx, err := pool.Begin(context.Background())
	require.NoError(t, err, "begin transaction")

	t.Cleanup(func() {
		_ = tx.Rollback(context.Background())
	})

	return repo.NewStateRepo(tx)
}

// stateFixture returns the seed document with one spend recorded, so decimal
// amounts are exercised on the way through the store.
func stateFixture() domain.TripState {
	s := domain.Defaults()
	s.Spends = []domain.Spend{{
		ID:       "spend-1",
		Date:     s.DateRange.Start,
		Area:     domain.AreaSamui,
		Label:    "Songthaew",
		Currency: domain.THB,
		Amount:   decimal.RequireFromString("120.50"),
	}}
	return s
}

func TestStateRepo_Upsert_Insert(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	got, err := r.Upsert(ctx, "trip_abc12345", stateFixture())

	require.NoError(t, err)
	assert.Equal(t, "trip_abc12345", got.Key)
	assert.True(t, domain.Equal(stateFixture(), got.State), "stored state should match input")
	assert.False(t, got.UpdatedAt.IsZero(), "UpdatedAt should be set by DB")
}

func TestStateRepo_Upsert_Replaces(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	_, err := r.Upsert(ctx, "trip_abc12345", stateFixture())
	require.NoError(t, err)

	next := stateFixture()
	next.Checklist[0].Done = true
	next.Spends = nil

	_, err = r.Upsert(ctx, "trip_abc12345", next)
	require.NoError(t, err)

	got, err := r.Get(ctx, "trip_abc12345")
	require.NoError(t, err)
	assert.True(t, got.State.Checklist[0].Done)
	assert.Empty(t, got.State.Spends, "last writer wins wholesale")
}

func TestStateRepo_Get(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	_, err := r.Upsert(ctx, "alice:trip_1", stateFixture())
	require.NoError(t, err)

	got, err := r.Get(ctx, "alice:trip_1")

	require.NoError(t, err)
	require.Len(t, got.State.Spends, 1)
	assert.True(t, got.State.Spends[0].Amount.Equal(decimal.RequireFromString("120.5")))
	assert.WithinDuration(t, time.Now(), got.UpdatedAt, time.Minute)
}

func TestStateRepo_Get_NotFound(t *testing.T) {
	r := newTestRepo(t)

	_, err := r.Get(context.Background(), "trip_missing")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStateRepo_Delete(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	_, err := r.Upsert(ctx, "trip_gone", stateFixture())
	require.NoError(t, err)

	require.NoError(t, r.Delete(ctx, "trip_gone"))

	_, err = r.Get(ctx, "trip_gone")
	assert.ErrorIs(t, err, domain.ErrNotFound, "document should be gone after delete")
}

func TestStateRepo_Delete_NotFound(t *testing.T) {
	r := newTestRepo(t)

	err := r.Delete(context.Background(), "trip_never")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}
