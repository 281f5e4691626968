package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trentd187/archery-club/internal/logging"
	"github.com/trentd187/archery-club/internal/metrics"
	"github.com/trentd187/archery-club/internal/models"
	"github.com/trentd187/archery-club/internal/store"
	"github.com/trentd187/archery-club/internal/store/storetest"
)

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, m.Set(ctx, "b", []byte("2"), 0))

	v, ok, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	now = now.Add(time.Minute)
	_, ok, _ = m.Get(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = m.Get(ctx, "b")
	assert.True(t, ok)

	require.NoError(t, m.Delete(ctx, "b", "missing"))
	assert.Zero(t, m.Len())
}

func TestMemory_SetIfVersion(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	v, err := m.Version(ctx, "session:1")
	require.NoError(t, err)
	assert.Zero(t, v)

	require.NoError(t, m.Delete(ctx, "session:1"))
	stored, err := m.SetIfVersion(ctx, "session:1", v, []byte("old"), time.Minute)
	require.NoError(t, err)
	assert.False(t, stored, "a value loaded before Delete must not be stored")
	_, ok, _ := m.Get(ctx, "session:1")
	assert.False(t, ok)

	v, err = m.Version(ctx, "session:1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
	stored, err = m.SetIfVersion(ctx, "session:1", v, []byte("new"), time.Minute)
	require.NoError(t, err)
	assert.True(t, stored)
	got, ok, _ := m.Get(ctx, "session:1")
	assert.True(t, ok)
	assert.Equal(t, []byte("new"), got)
}

// countingStore counts the reads that reach the wrapped store.
type countingStore struct {
	store.Store
	sessionLoads int
	roundLists   int
}

func (c *countingStore) LoadSession(ctx context.Context, id int64) (*models.Session, error) {
	c.sessionLoads++
	return c.Store.LoadSession(ctx, id)
}

func (c *countingStore) ListRounds(ctx context.Context) ([]models.Round, error) {
	c.roundLists++
	return c.Store.ListRounds(ctx)
}

type fixture struct {
	ctx     context.Context
	mem     *storetest.MemStore
	counter *countingStore
	cached  *Store
	metrics *metrics.Metrics
	session *models.Session
	rangeID int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := storetest.NewMemStore()
	archer := mem.AddArcher(models.Archer{
		BirthYear:  1990,
		GenderID:   mem.GenderID(models.GenderFemale),
		DivisionID: mem.DivisionID(models.DivisionRecurve),
	})
	round := &models.Round{Name: "Short Metric", Ranges: []models.RoundRange{{DistanceM: 30, FaceSize: 80, EndsPerRange: 6}}}
	require.NoError(t, mem.CreateRound(ctx, round))
	sess := &models.Session{ArcherID: archer.ID, RoundID: round.ID, ShootDate: time.Date(2025, 5, 4, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, mem.CreateSession(ctx, sess))

	counter := &countingStore{Store: mem}
	m := metrics.New(prometheus.NewRegistry())
	return &fixture{
		ctx:     ctx,
		mem:     mem,
		counter: counter,
		cached:  NewStore(counter, NewMemory(), time.Minute, logging.Discard(), m),
		metrics: m,
		session: sess,
		rangeID: round.Ranges[0].ID,
	}
}

func TestStore_ReadThroughAndInvalidate(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		s, err := f.cached.LoadSession(f.ctx, f.session.ID)
		require.NoError(t, err)
		assert.Empty(t, s.Ends)
	}
	assert.Equal(t, 1, f.counter.sessionLoads)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.CacheRequests.WithLabelValues("hit")))

	arrows := []models.Arrow{{ArrowNo: 1, Value: models.ArrowNine}}
	require.NoError(t, f.cached.SaveEnd(f.ctx, f.session.ID, f.rangeID, 1, arrows))

	s, err := f.cached.LoadSession(f.ctx, f.session.ID)
	require.NoError(t, err)
	require.Len(t, s.Ends, 1)
	assert.Equal(t, 2, f.counter.sessionLoads)
}

func TestStore_TxInvalidatesOnlyAfterCommit(t *testing.T) {
	f := newFixture(t)

	_, err := f.cached.LoadSession(f.ctx, f.session.ID)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = f.cached.Tx(f.ctx, func(tx store.Store) error {
		require.NoError(t, tx.FinalizeSession(f.ctx, f.session.ID))
		return boom
	})
	require.ErrorIs(t, err, boom)

	s, err := f.cached.LoadSession(f.ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusPreliminary, s.Status)
	assert.Equal(t, 1, f.counter.sessionLoads, "rolled back tx must not invalidate")

	err = f.cached.Tx(f.ctx, func(tx store.Store) error {
		return tx.FinalizeSession(f.ctx, f.session.ID)
	})
	require.NoError(t, err)

	s, err = f.cached.LoadSession(f.ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusFinal, s.Status)
}

func TestStore_CreateRoundInvalidatesList(t *testing.T) {
	f := newFixture(t)

	rounds, err := f.cached.ListRounds(f.ctx)
	require.NoError(t, err)
	require.Len(t, rounds, 1)

	require.NoError(t, f.cached.CreateRound(f.ctx, &models.Round{
		Name:   "Long Metric",
		Ranges: []models.RoundRange{{DistanceM: 70, FaceSize: 122, EndsPerRange: 6}},
	}))

	rounds, err = f.cached.ListRounds(f.ctx)
	require.NoError(t, err)
	assert.Len(t, rounds, 2)
	assert.Equal(t, 2, f.counter.roundLists)
}

// pausingStore holds the first LoadSession after it has read the row, until release is
// closed. That lets a test commit a write between a cache miss and the cache fill.
type pausingStore struct {
	store.Store
	loaded  chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *pausingStore) LoadSession(ctx context.Context, id int64) (*models.Session, error) {
	s, err := p.Store.LoadSession(ctx, id)
	p.once.Do(func() {
		close(p.loaded)
		<-p.release
	})
	return s, err
}

func TestStore_LoadRacingWriteIsNotCached(t *testing.T) {
	f := newFixture(t)
	paused := &pausingStore{Store: f.mem, loaded: make(chan struct{}), release: make(chan struct{})}
	cached := NewStore(paused, NewMemory(), time.Minute, logging.Discard(), nil)

	type result struct {
		s   *models.Session
		err error
	}
	done := make(chan result, 1)
	go func() {
		s, err := cached.LoadSession(f.ctx, f.session.ID)
		done <- result{s, err}
	}()

	// The reader has the session without ends and is about to fill the cache.
	<-paused.loaded
	arrows := []models.Arrow{{ArrowNo: 1, Value: models.ArrowNine}}
	require.NoError(t, cached.SaveEnd(f.ctx, f.session.ID, f.rangeID, 1, arrows))
	close(paused.release)

	first := <-done
	require.NoError(t, first.err)
	assert.Empty(t, first.s.Ends, "the racing read saw the row as it was when it loaded")

	s, err := cached.LoadSession(f.ctx, f.session.ID)
	require.NoError(t, err)
	assert.Len(t, s.Ends, 1, "the pre-write snapshot must not be served after SaveEnd committed")
}

// failingCache errors on every call; the store must still answer from the database.
type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("cache down")
}
func (failingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("cache down")
}
func (failingCache) Delete(context.Context, ...string) error { return errors.New("cache down") }
func (failingCache) Version(context.Context, string) (uint64, error) {
	return 0, errors.New("cache down")
}
func (failingCache) SetIfVersion(context.Context, string, uint64, []byte, time.Duration) (bool, error) {
	return false, errors.New("cache down")
}

func TestStore_CacheFailuresFallThrough(t *testing.T) {
	f := newFixture(t)
	cached := NewStore(f.counter, failingCache{}, time.Minute, logging.Discard(), nil)

	s, err := cached.LoadSession(f.ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, f.session.ID, s.ID)
	require.NoError(t, cached.FinalizeSession(f.ctx, f.session.ID))
}
