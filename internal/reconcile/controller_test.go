package reconcile_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/tripmate/internal/domain"
	"github.com/pkordes/tripmate/internal/logger"
	"github.com/pkordes/tripmate/internal/reconcile"
	"github.com/pkordes/tripmate/internal/remote"
)

const (
	quiet   = 30 * time.Millisecond
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var tripKey = domain.TripKey{TripID: "trip_ab12cd34"}

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

// memPersister is an in-memory reconcile.Persister that counts writes.
type memPersister struct {
	mu     sync.Mutex
	stored *domain.TripState
	writes int
}

var _ reconcile.Persister = (*memPersister)(nil)

func (p *memPersister) Persist(_ context.Context, s domain.TripState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := s.Clone()
	p.stored = &c
	p.writes++
}

func (p *memPersister) Restore(_ context.Context, fallback domain.TripState) domain.TripState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stored == nil {
		return fallback
	}
	return p.stored.Clone()
}

func (p *memPersister) Writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}

func (p *memPersister) Stored() domain.TripState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stored.Clone()
}

// gatedStore holds every Save until release is closed.
type gatedStore struct {
	*remote.MemStore
	entered chan struct{}
	release chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		MemStore: remote.NewMemStore(),
		entered:  make(chan struct{}, 16),
		release:  make(chan struct{}),
	}
}

func (g *gatedStore) Save(ctx context.Context, key domain.TripKey, s domain.TripState) error {
	g.entered <- struct{}{}
	<-g.release
	return g.MemStore.Save(ctx, key, s)
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func newController(t *testing.T, local reconcile.Persister, store remote.Store) *reconcile.Controller {
	t.Helper()
	c, err := reconcile.New(context.Background(), reconcile.Config{
		Key:      tripKey,
		Local:    local,
		Remote:   store,
		Debounce: quiet,
		Logger:   logger.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func started(t *testing.T, local reconcile.Persister, store remote.Store) *reconcile.Controller {
	t.Helper()
	c := newController(t, local, store)
	require.NoError(t, c.Start(context.Background()))
	return c
}

func addSpend(label string, amount int64) func(*domain.TripState) error {
	return func(s *domain.TripState) error {
		s.Spends = append(s.Spends, domain.Spend{
			ID: domain.NewID(), Date: s.DateRange.Start, Area: domain.AreaSamui,
			Label: label, Currency: domain.THB, Amount: decimal.NewFromInt(amount),
		})
		return nil
	}
}

func toggle(id string) func(*domain.TripState) error {
	return func(s *domain.TripState) error {
		i := s.FindChecklistItem(id)
		if i < 0 {
			return domain.ErrNotFound
		}
		s.Checklist[i].Done = !s.Checklist[i].Done
		return nil
	}
}

func remoteState(t *testing.T, store remote.Store) domain.TripState {
	t.Helper()
	got, err := store.Load(context.Background(), tripKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	return *got
}

func done(s domain.TripState, id string) bool {
	return s.Checklist[s.FindChecklistItem(id)].Done
}

// ---------------------------------------------------------------------------
// lifecycle
// ---------------------------------------------------------------------------

func TestNew_BootsFromLocalState(t *testing.T) {
	local := &memPersister{}
	seeded := domain.Defaults()
	require.NoError(t, addSpend("Taxi", 250)(&seeded))
	local.Persist(context.Background(), seeded)

	c := newController(t, local, remote.NewMemStore())

	assert.Equal(t, reconcile.Booting, c.Phase())
	assert.Equal(t, reconcile.Idle, c.Mode())
	assert.True(t, domain.Equal(seeded, c.State()))
}

func TestStart_FreshDeviceSeedsRemoteOnce(t *testing.T) {
	store := remote.NewMemStore()

	c := started(t, &memPersister{}, store)

	assert.Equal(t, reconcile.Live, c.Phase())
	assert.True(t, domain.Equal(domain.Defaults(), c.State()))
	assert.Equal(t, 1, store.Saves(tripKey))
	assert.True(t, domain.Equal(domain.Defaults(), remoteState(t, store)))
	assert.Equal(t, 1, store.Subscribers(tripKey))
	assert.Never(t, func() bool { return store.Saves(tripKey) > 1 }, 4*quiet, tick)
}

func TestStart_RemoteDocumentReplacesLocal(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemStore()
	theirs := domain.Defaults()
	require.NoError(t, addSpend("Longtail boat", 1500)(&theirs))
	require.NoError(t, store.Save(ctx, tripKey, theirs))

	local := &memPersister{}
	mine := domain.Defaults()
	require.NoError(t, addSpend("Offline coffee", 90)(&mine))
	local.Persist(ctx, mine)

	c := started(t, local, store)

	assert.True(t, domain.Equal(theirs, c.State()))
	assert.True(t, domain.Equal(theirs, local.Stored()), "adopted state is persisted")
	assert.Never(t, func() bool { return store.Saves(tripKey) > 1 }, 4*quiet, tick, "hydration never publishes")
}

func TestStart_LoadFailureKeepsLocalState(t *testing.T) {
	store := remote.NewMemStore()
	store.FailLoad(remote.ErrUnavailable)
	local := &memPersister{}
	mine := domain.Defaults()
	require.NoError(t, addSpend("Taxi", 250)(&mine))
	local.Persist(context.Background(), mine)

	c := newController(t, local, store)
	require.NoError(t, c.Start(context.Background()))

	assert.Equal(t, reconcile.Live, c.Phase())
	assert.True(t, domain.Equal(mine, c.State()))
	assert.Zero(t, store.Saves(tripKey), "no seed when the load itself failed")
}

func TestStart_InvalidRemoteTreatedAsAbsent(t *testing.T) {
	store := &invalidOnLoad{MemStore: remote.NewMemStore()}

	c := started(t, &memPersister{}, store)

	assert.True(t, domain.Equal(domain.Defaults(), c.State()))
	assert.Equal(t, 1, store.Saves(tripKey), "seeded over the unusable document")
}

type invalidOnLoad struct{ *remote.MemStore }

func (s *invalidOnLoad) Load(context.Context, domain.TripKey) (*domain.TripState, error) {
	bad := domain.Defaults()
	bad.ExchangeRates.THB = decimal.Zero
	return &bad, nil
}

func TestStart_SubscribeFailureStaysLocalOnly(t *testing.T) {
	store := remote.NewMemStore()
	store.FailSubscribe(remote.ErrUnavailable)
	local := &memPersister{}

	c := started(t, local, store)
	require.NoError(t, c.Update(addSpend("Taxi", 250)))

	assert.Equal(t, reconcile.Live, c.Phase())
	assert.Zero(t, store.Subscribers(tripKey))
	assert.Len(t, local.Stored().Spends, 1)
	assert.Eventually(t, func() bool { return store.Saves(tripKey) == 2 }, waitFor, tick,
		"edits are still published")
}

func TestStart_AfterClose(t *testing.T) {
	c := newController(t, &memPersister{}, remote.NewMemStore())
	c.Close()

	assert.ErrorIs(t, c.Start(context.Background()), reconcile.ErrClosed)
}

// ---------------------------------------------------------------------------
// local edits
// ---------------------------------------------------------------------------

func TestUpdate_PersistsAtOnceAndPublishesAfterQuietPeriod(t *testing.T) {
	store := remote.NewMemStore()
	local := &memPersister{}
	c := started(t, local, store)
	before := local.Writes()

	require.NoError(t, c.Update(addSpend("Taxi", 250)))

	assert.Equal(t, before+1, local.Writes())
	assert.Len(t, local.Stored().Spends, 1)
	assert.Equal(t, 1, store.Saves(tripKey), "not published synchronously")
	assert.Eventually(t, func() bool { return store.Saves(tripKey) == 2 }, waitFor, tick)
	assert.True(t, domain.Equal(c.State(), remoteState(t, store)))
}

func TestUpdate_BurstPublishesOnceWithLatestState(t *testing.T) {
	store := remote.NewMemStore()
	c := started(t, &memPersister{}, store)

	for i := range 5 {
		require.NoError(t, c.Update(addSpend("Snack", int64(10+i))))
	}

	require.Eventually(t, func() bool { return store.Saves(tripKey) == 2 }, waitFor, tick)
	assert.Never(t, func() bool { return store.Saves(tripKey) > 2 }, 4*quiet, tick)
	got := remoteState(t, store)
	assert.Len(t, got.Spends, 5)
	assert.True(t, domain.Equal(c.State(), got))
}

func TestUpdate_RejectedEditLeavesStateUntouched(t *testing.T) {
	store := remote.NewMemStore()
	local := &memPersister{}
	c := started(t, local, store)
	before := c.State()
	writes := local.Writes()
	boom := errors.New("boom")

	err := c.Update(func(s *domain.TripState) error {
		s.Spends = nil
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = c.Update(func(s *domain.TripState) error {
		s.ExchangeRates.QAR = decimal.NewFromInt(-1)
		return nil
	})
	require.ErrorIs(t, err, domain.ErrValidation)

	assert.True(t, domain.Equal(before, c.State()))
	assert.Equal(t, writes, local.Writes())
	assert.Never(t, func() bool { return store.Saves(tripKey) > 1 }, 4*quiet, tick)
}

func TestUpdate_NormalisesBeforeCommit(t *testing.T) {
	c := started(t, &memPersister{}, remote.NewMemStore())

	require.NoError(t, c.Update(func(s *domain.TripState) error {
		s.ExchangeRates.GBP = decimal.NewFromInt(7)
		return nil
	}))

	assert.True(t, c.State().ExchangeRates.GBP.Equal(decimal.NewFromInt(1)))
}

func TestUpdate_NoChangeIsNoOp(t *testing.T) {
	store := remote.NewMemStore()
	local := &memPersister{}
	c := started(t, local, store)
	writes := local.Writes()
	calls := 0
	c.Observe(func(context.Context, domain.TripState, reconcile.Origin) { calls++ })

	require.NoError(t, c.Update(func(*domain.TripState) error { return nil }))

	assert.Equal(t, writes, local.Writes())
	assert.Zero(t, calls)
	assert.Never(t, func() bool { return store.Saves(tripKey) > 1 }, 4*quiet, tick)
}

func TestReplace(t *testing.T) {
	c := started(t, &memPersister{}, remote.NewMemStore())
	require.NoError(t, c.Update(addSpend("Taxi", 250)))

	require.NoError(t, c.Replace(domain.Defaults()))

	assert.True(t, domain.Equal(domain.Defaults(), c.State()))
}

func TestFlush_PublishesPendingEditNow(t *testing.T) {
	store := remote.NewMemStore()
	c, err := reconcile.New(context.Background(), reconcile.Config{
		Key: tripKey, Local: &memPersister{}, Remote: store,
		Debounce: time.Hour, Logger: logger.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Update(addSpend("Taxi", 250)))

	assert.True(t, c.Flush())
	assert.Equal(t, 2, store.Saves(tripKey))
	assert.False(t, c.Flush(), "nothing left")
}

func TestPublish_FailureIsSwallowed(t *testing.T) {
	store := remote.NewMemStore()
	local := &memPersister{}
	c := started(t, local, store)
	store.FailSave(remote.ErrUnavailable)

	require.NoError(t, c.Update(addSpend("Taxi", 250)))

	assert.True(t, c.Flush())
	assert.Len(t, c.State().Spends, 1)
	assert.Len(t, local.Stored().Spends, 1, "edit survives locally")
	assert.Equal(t, reconcile.Idle, c.Mode())
}

func TestPublish_ModeWhileSaving(t *testing.T) {
	store := newGatedStore()
	require.NoError(t, store.MemStore.Save(context.Background(), tripKey, domain.Defaults()))
	c := started(t, &memPersister{}, store)

	require.NoError(t, c.Update(addSpend("Taxi", 250)))
	<-store.entered

	assert.Equal(t, reconcile.Publishing, c.Mode())
	close(store.release)
	assert.Eventually(t, func() bool { return c.Mode() == reconcile.Idle }, waitFor, tick)
}

func TestPublish_ModeStaysPublishingWhileSavesOverlap(t *testing.T) {
	store := newGatedStore()
	c := newController(t, &memPersister{}, store)

	startErr := make(chan error, 1)
	go func() { startErr <- c.Start(context.Background()) }()
	<-store.entered // seed

	require.NoError(t, c.Update(addSpend("Taxi", 250)))
	go c.Flush()
	<-store.entered // edit

	store.release <- struct{}{}
	require.Eventually(t, func() bool { return store.Saves(tripKey) == 1 }, waitFor, tick)
	assert.Equal(t, reconcile.Publishing, c.Mode(), "one save is still in flight")

	close(store.release)
	require.NoError(t, <-startErr)
	assert.Eventually(t, func() bool { return c.Mode() == reconcile.Idle }, waitFor, tick)
}

func TestPublish_StaleEchoOfOwnSaveIsDropped(t *testing.T) {
	store := newGatedStore()
	require.NoError(t, store.MemStore.Save(context.Background(), tripKey, domain.Defaults()))
	c := started(t, &memPersister{}, store)

	require.NoError(t, c.Update(addSpend("First", 100)))
	<-store.entered
	require.NoError(t, c.Update(addSpend("Second", 200)))
	close(store.release)

	require.Eventually(t, func() bool {
		got := remoteState(t, store.MemStore)
		return len(got.Spends) == 2
	}, waitFor, tick)
	assert.Len(t, c.State().Spends, 2, "the echo of the first save never reverted the second edit")
	assert.True(t, domain.Equal(c.State(), remoteState(t, store.MemStore)))
}

// ---------------------------------------------------------------------------
// remote changes
// ---------------------------------------------------------------------------

func TestRemoteChange_ReplacesStateWholesale(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemStore()
	local := &memPersister{}
	c := started(t, local, store)
	require.NoError(t, c.Update(addSpend("Taxi", 250)))
	require.True(t, c.Flush())

	var origins []reconcile.Origin
	var mu sync.Mutex
	c.Observe(func(_ context.Context, _ domain.TripState, o reconcile.Origin) {
		mu.Lock()
		defer mu.Unlock()
		origins = append(origins, o)
	})

	theirs := domain.Defaults()
	theirs.Restaurants = theirs.Restaurants[:1]
	theirs.Steps = map[string]int{"2025-09-17": 12000}
	require.NoError(t, store.Save(ctx, tripKey, theirs))

	assert.True(t, domain.Equal(theirs, c.State()))
	assert.Empty(t, c.State().Spends, "no merge with the previous spends")
	assert.True(t, domain.Equal(theirs, local.Stored()))
	mu.Lock()
	assert.Equal(t, []reconcile.Origin{reconcile.OriginRemote}, origins)
	mu.Unlock()
	assert.Never(t, func() bool { return store.Saves(tripKey) > 3 }, 4*quiet, tick,
		"applying a remote change never republishes it")
}

func TestRemoteChange_EqualStateIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemStore()
	local := &memPersister{}
	c := started(t, local, store)
	writes := local.Writes()
	calls := 0
	c.Observe(func(context.Context, domain.TripState, reconcile.Origin) { calls++ })

	require.NoError(t, store.Save(ctx, tripKey, c.State()))

	assert.Equal(t, writes, local.Writes())
	assert.Zero(t, calls)
	assert.Never(t, func() bool { return store.Saves(tripKey) > 2 }, 4*quiet, tick)
}

func TestRemoteChange_InvalidIsIgnored(t *testing.T) {
	store := remote.NewMemStore()
	c := started(t, &memPersister{}, store)
	before := c.State()

	bad := domain.Defaults()
	bad.Spends = []domain.Spend{{ID: "x", Area: "Phuket", Currency: domain.THB, Label: "?"}}
	require.NoError(t, store.Save(context.Background(), tripKey, bad))

	assert.True(t, domain.Equal(before, c.State()))
}

func TestRemoteChange_ObserverEditIsKeptButNotPublished(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemStore()
	local := &memPersister{}
	c := started(t, local, store)

	var modes []reconcile.Mode
	c.Observe(func(ctx context.Context, s domain.TripState, o reconcile.Origin) {
		if o != reconcile.OriginRemote {
			return
		}
		modes = append(modes, c.Mode())
		_ = c.UpdateContext(ctx, toggle("c-doha-1"))
	})

	theirs := domain.Defaults()
	require.NoError(t, toggle("c-samui-1")(&theirs))
	require.NoError(t, store.Save(ctx, tripKey, theirs))

	assert.Equal(t, []reconcile.Mode{reconcile.ApplyingRemote}, modes)
	assert.True(t, done(c.State(), "c-doha-1"))
	assert.True(t, done(local.Stored(), "c-doha-1"), "committed and persisted")
	assert.Equal(t, reconcile.Idle, c.Mode())
	assert.Never(t, func() bool { return store.Saves(tripKey) > 2 }, 4*quiet, tick, "never published")
}

func TestRemoteChange_EditFromAnotherGoroutineIsPublished(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemStore()
	c := started(t, &memPersister{}, store)

	applying := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	c.Observe(func(_ context.Context, _ domain.TripState, o reconcile.Origin) {
		if o != reconcile.OriginRemote {
			return
		}
		once.Do(func() {
			close(applying)
			<-release
		})
	})

	theirs := domain.Defaults()
	require.NoError(t, toggle("c-samui-1")(&theirs))
	saved := make(chan error, 1)
	go func() { saved <- store.Save(ctx, tripKey, theirs) }()

	<-applying
	require.Equal(t, reconcile.ApplyingRemote, c.Mode())
	require.NoError(t, c.Update(addSpend("Taxi", 250)))
	close(release)
	require.NoError(t, <-saved)

	require.Eventually(t, func() bool {
		return len(remoteState(t, store).Spends) == 1
	}, waitFor, tick, "edit made during the remote apply reaches the store")
	got := remoteState(t, store)
	assert.True(t, done(got, "c-samui-1"))
	assert.True(t, domain.Equal(c.State(), got))
}

func TestClose_UnsubscribesAndDropsPendingPublish(t *testing.T) {
	store := remote.NewMemStore()
	local := &memPersister{}
	c := started(t, local, store)
	require.Equal(t, 1, store.Subscribers(tripKey))

	require.NoError(t, c.Update(addSpend("Taxi", 250)))
	c.Close()
	c.Close()

	assert.Zero(t, store.Subscribers(tripKey))
	assert.Never(t, func() bool { return store.Saves(tripKey) > 1 }, 4*quiet, tick)
	assert.Len(t, local.Stored().Spends, 1, "local copy holds the unpublished edit")
}

// ---------------------------------------------------------------------------
// two devices
// ---------------------------------------------------------------------------

func TestTwoDevices_EditReachesOtherDevice(t *testing.T) {
	store := remote.NewMemStore()
	d1 := started(t, &memPersister{}, store)
	d2 := started(t, &memPersister{}, store)

	require.NoError(t, d1.Update(addSpend("Taxi", 250)))
	id := d1.State().Spends[0].ID

	require.Eventually(t, func() bool {
		s := d2.State()
		return len(s.Spends) == 1 && s.Spends[0].ID == id
	}, waitFor, tick)
	got := d2.State().Spends[0]
	assert.Equal(t, "Taxi", got.Label)
	assert.Equal(t, domain.THB, got.Currency)
	assert.Equal(t, domain.AreaSamui, got.Area)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(250)))
}

func TestTwoDevices_LastWriterWins(t *testing.T) {
	store := remote.NewMemStore()
	slow := func() *reconcile.Controller {
		c, err := reconcile.New(context.Background(), reconcile.Config{
			Key: tripKey, Local: &memPersister{}, Remote: store,
			Debounce: time.Hour, Logger: logger.Discard(),
		})
		require.NoError(t, err)
		t.Cleanup(c.Close)
		require.NoError(t, c.Start(context.Background()))
		return c
	}
	d1, d2 := slow(), slow()

	require.NoError(t, d1.Update(toggle("c-samui-1")))
	require.NoError(t, d2.Update(toggle("c-samui-2")))
	require.True(t, d1.Flush())
	require.True(t, d2.Flush())

	final := remoteState(t, store)
	assert.False(t, done(final, "c-samui-1"), "first writer's toggle is overwritten")
	assert.True(t, done(final, "c-samui-2"))
	assert.True(t, domain.Equal(final, d1.State()))
	assert.True(t, domain.Equal(final, d2.State()))
}

// ---------------------------------------------------------------------------
// session data
// ---------------------------------------------------------------------------

func TestSessionDataIsNotSynchronised(t *testing.T) {
	store := remote.NewMemStore()
	c := started(t, &memPersister{}, store)

	_, ok := c.BudgetTarget()
	assert.False(t, ok)
	c.SetBudgetTarget(decimal.NewFromInt(1500))

	got, ok := c.BudgetTarget()
	require.True(t, ok)
	assert.True(t, got.Equal(decimal.NewFromInt(1500)))
	assert.Never(t, func() bool { return store.Saves(tripKey) > 1 }, 4*quiet, tick)
}
