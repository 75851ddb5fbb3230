package repo_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/tripmate/internal/domain"
	"github.com/pkordes/tripmate/internal/repo"
)

// newMongoRepo connects to TEST_MONGO_URI and returns a StateRepo over a
// uniquely named database that is dropped when the test finishes.
func newMongoRepo(t *testing.T) repo.StateRepo {
	t.Helper()
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set; skipping integration test")
	}

	ctx := context.Background()
	client, err := repo.ConnectMongo(ctx, uri)
	require.NoError(t, err)

	database := client.Database("tripmate_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		_ = database.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return repo.NewMongoStateRepo(database.Collection(repo.StateCollection))
}

func TestMongoStateRepo_RoundTrip(t *testing.T) {
	r := newMongoRepo(t)
	ctx := context.Background()

	_, err := r.Get(ctx, "trip_1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	saved, err := r.Upsert(ctx, "trip_1", stateFixture())
	require.NoError(t, err)

	got, err := r.Get(ctx, "trip_1")
	require.NoError(t, err)
	assert.True(t, domain.Equal(saved.State, got.State))
	assert.True(t, saved.UpdatedAt.Equal(got.UpdatedAt))

	require.NoError(t, r.Delete(ctx, "trip_1"))
	assert.ErrorIs(t, r.Delete(ctx, "trip_1"), domain.ErrNotFound)
}
