package shortener

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/linkcache/cache"
	"github.com/IvanBrykalov/linkcache/store"
	"github.com/IvanBrykalov/linkcache/store/memstore"
)

type clock struct{ ns atomic.Int64 }

func newClock() *clock {
	c := &clock{}
	c.ns.Store(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano())
	return c
}

func (c *clock) NowUnixNano() int64      { return c.ns.Load() }
func (c *clock) Now() time.Time          { return time.Unix(0, c.ns.Load()) }
func (c *clock) Advance(d time.Duration) { c.ns.Add(int64(d)) }

// countingStore counts calls and lets a test override Create.
type countingStore struct {
	store.Store
	creates   atomic.Int64
	findByID  atomic.Int64
	findByLoc atomic.Int64
	refreshes atomic.Int64

	onCreate func(ctx context.Context, rec cache.Record) error
}

func (s *countingStore) FindByID(ctx context.Context, id string) (cache.Record, error) {
	s.findByID.Add(1)
	return s.Store.FindByID(ctx, id)
}

func (s *countingStore) FindByLocator(ctx context.Context, locator string) (cache.Record, error) {
	s.findByLoc.Add(1)
	return s.Store.FindByLocator(ctx, locator)
}

func (s *countingStore) Create(ctx context.Context, rec cache.Record) error {
	s.creates.Add(1)
	if s.onCreate != nil {
		return s.onCreate(ctx, rec)
	}
	return s.Store.Create(ctx, rec)
}

func (s *countingStore) RefreshExpiration(ctx context.Context, id string, exp time.Time) error {
	s.refreshes.Add(1)
	return s.Store.RefreshExpiration(ctx, id, exp)
}

type fixture struct {
	clk   *clock
	mem   *memstore.Store
	store *countingStore
	cache *cache.Cache
	svc   *Service
}

func newFixture(t *testing.T, opt Options) *fixture {
	t.Helper()

	clk := newClock()
	mem := memstore.New(clk.Now)
	cs := &countingStore{Store: mem}
	c := cache.New(cache.Options{MaxEntries: 64, Clock: clk})
	t.Cleanup(func() { _ = c.Close() })
	return &fixture{clk: clk, mem: mem, store: cs, cache: c, svc: New(c, cs, opt)}
}

// seq hands out the given ids in order, then fails.
func seq(ids ...string) IDGenerator {
	var mu sync.Mutex
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(ids) == 0 {
			return "", errors.New("out of ids")
		}
		id := ids[0]
		ids = ids[1:]
		return id, nil
	}
}

// Lookup of an unknown id is "not found" and caches nothing.
func TestLookup_UnknownID(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{})

	_, err := f.svc.Lookup(context.Background(), "zz9")
	require.ErrorIs(t, err, ErrNotFound)
	require.False(t, errors.Is(err, ErrUnavailable))
	require.Zero(t, f.cache.Size())
	require.Equal(t, int64(1), f.store.findByID.Load())

	// No negative caching: the store is asked again.
	_, err = f.svc.Lookup(context.Background(), "zz9")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, int64(2), f.store.findByID.Load())
}

// Shorten twice in a row returns the same id with a single store create.
func TestShorten_Twice(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{})
	ctx := context.Background()

	id1, err := f.svc.Shorten(ctx, "https://example.com/x")
	require.NoError(t, err)
	id2, err := f.svc.Shorten(ctx, "https://example.com/x")
	require.NoError(t, err)

	require.Equal(t, id1, id2)
	require.Len(t, id1, DefaultIDLength)
	require.Equal(t, int64(1), f.store.creates.Load())
	require.Equal(t, 1, f.mem.Len())

	rec, ok := f.cache.GetByLocator("https://example.com/x")
	require.True(t, ok)
	require.Equal(t, id1, rec.ID)
}

// Two processes with separate caches over one store agree on the id.
func TestShorten_DedupThroughStore(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{})
	ctx := context.Background()

	other := New(cache.New(cache.Options{MaxEntries: 8, Clock: f.clk}), f.store, Options{})

	id1, err := f.svc.Shorten(ctx, "https://example.com/x")
	require.NoError(t, err)
	id2, err := other.Shorten(ctx, "https://example.com/x")
	require.NoError(t, err)

	require.Equal(t, id1, id2)
	require.Equal(t, int64(1), f.store.creates.Load())
	require.Equal(t, 1, f.mem.Len())
}

// Concurrent creations of one new locator coalesce into one create.
func TestShorten_ConcurrentSameLocator(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{})

	const n = 16
	ids := make([]string, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			id, err := f.svc.Shorten(context.Background(), "https://example.com/hot")
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}
	require.Equal(t, 1, f.mem.Len())
}

// Losing a create race to another process reuses the winner's id.
func TestShorten_LostRaceReusesWinner(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{NewID: seq("mine")})
	f.store.onCreate = func(ctx context.Context, rec cache.Record) error {
		winner := cache.Record{ID: "theirs", Locator: rec.Locator, ExpiresAt: rec.ExpiresAt}
		assert.NoError(t, f.mem.Create(ctx, winner))
		return store.ErrConflict
	}

	id, err := f.svc.Shorten(context.Background(), "https://example.com/x")
	require.NoError(t, err)
	require.Equal(t, "theirs", id)
	require.Equal(t, int64(1), f.store.creates.Load())

	rec, ok := f.cache.GetByID("theirs")
	require.True(t, ok)
	require.Equal(t, "https://example.com/x", rec.Locator)
}

// An id collision draws a new id and retries.
func TestShorten_IDCollisionRetries(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{NewID: seq("taken", "fresh")})
	ctx := context.Background()
	require.NoError(t, f.mem.Create(ctx, cache.Record{ID: "taken", Locator: "https://other", ExpiresAt: f.clk.Now().Add(time.Hour)}))

	id, err := f.svc.Shorten(ctx, "https://example.com/x")
	require.NoError(t, err)
	require.Equal(t, "fresh", id)
	require.Equal(t, int64(2), f.store.creates.Load())
}

func TestShorten_GivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{NewID: seq("taken", "taken", "taken"), MaxCreateAttempts: 3})
	ctx := context.Background()
	require.NoError(t, f.mem.Create(ctx, cache.Record{ID: "taken", Locator: "https://other", ExpiresAt: f.clk.Now().Add(time.Hour)}))

	_, err := f.svc.Shorten(ctx, "https://example.com/x")
	require.ErrorIs(t, err, ErrExhausted)
	require.Equal(t, int64(3), f.store.creates.Load())
	require.Zero(t, f.cache.Size())
}

func TestShorten_InvalidLocator(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{})

	for _, in := range []string{"", "invalid-url", "ftp://example.com/x", "https://", "mailto:a@b.c"} {
		_, err := f.svc.Shorten(context.Background(), in)
		require.ErrorIs(t, err, ErrInvalidLocator, in)
	}
	require.Zero(t, f.store.findByLoc.Load())
	require.Zero(t, f.store.creates.Load())
}

// A cache hit on Shorten extends the expiration in store and cache.
func TestShorten_RefreshOnReuse(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{})
	ctx := context.Background()

	id, err := f.svc.Shorten(ctx, "https://example.com/x")
	require.NoError(t, err)
	first, _ := f.cache.GetByID(id)

	f.clk.Advance(time.Hour)
	_, err = f.svc.Shorten(ctx, "https://example.com/x")
	require.NoError(t, err)

	cached, ok := f.cache.GetByID(id)
	require.True(t, ok)
	require.True(t, cached.ExpiresAt.Equal(first.ExpiresAt.Add(time.Hour)))
	stored, err := f.mem.FindByID(ctx, id)
	require.NoError(t, err)
	require.True(t, stored.ExpiresAt.Equal(cached.ExpiresAt))
}

func TestShorten_KeepExpiryOnReuse(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{KeepExpiryOnReuse: true})
	ctx := context.Background()

	id, err := f.svc.Shorten(ctx, "https://example.com/x")
	require.NoError(t, err)
	first, _ := f.cache.GetByID(id)

	f.clk.Advance(time.Hour)
	_, err = f.svc.Shorten(ctx, "https://example.com/x")
	require.NoError(t, err)

	cached, _ := f.cache.GetByID(id)
	require.True(t, cached.ExpiresAt.Equal(first.ExpiresAt))
	require.Zero(t, f.store.refreshes.Load())
}

// Read-through fills the cache and refreshes the store.
func TestLookup_ReadThrough(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{})
	ctx := context.Background()
	require.NoError(t, f.mem.Create(ctx, cache.Record{ID: "abc", Locator: "https://example.com/a", ExpiresAt: f.clk.Now().Add(time.Minute)}))

	loc, err := f.svc.Lookup(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/a", loc)

	cached, ok := f.cache.GetByID("abc")
	require.True(t, ok)
	require.True(t, cached.ExpiresAt.Equal(f.cache.Deadline()))
	stored, err := f.mem.FindByID(ctx, "abc")
	require.NoError(t, err)
	require.True(t, stored.ExpiresAt.Equal(cached.ExpiresAt))

	// Hits are served from the cache.
	_, err = f.svc.Lookup(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, int64(1), f.store.findByID.Load())
}

// An expired cache entry is a miss even before the sweeper runs.
func TestLookup_ExpiredEverywhere(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{})
	ctx := context.Background()

	id, err := f.svc.Shorten(ctx, "https://example.com/x")
	require.NoError(t, err)

	f.clk.Advance(f.cache.TTL() + time.Second)
	_, err = f.svc.Lookup(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)
	require.Zero(t, f.cache.Size())
}

// A mapping the store lost behind the cache is recreated, not served.
func TestShorten_StoreLostMapping(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{NewID: seq("first", "second")})
	ctx := context.Background()

	id, err := f.svc.Shorten(ctx, "https://example.com/x")
	require.NoError(t, err)
	require.Equal(t, "first", id)

	// Purge the store only.
	f.clk.Advance(48 * time.Hour)
	_, err = f.mem.DeleteExpired(ctx, f.clk.Now())
	require.NoError(t, err)
	// Back to an hour after creation, where the cache still holds it.
	f.clk.Advance(-47 * time.Hour)

	id, err = f.svc.Shorten(ctx, "https://example.com/x")
	require.NoError(t, err)
	require.Equal(t, "second", id)
	_, ok := f.cache.GetByID("first")
	require.False(t, ok)
}

type downStore struct{ store.Store }

var errDown = errors.New("dial tcp: connection refused")

func (downStore) FindByID(context.Context, string) (cache.Record, error) {
	return cache.Record{}, store.Unavailable(errDown, "find link by id")
}

func (downStore) FindByLocator(context.Context, string) (cache.Record, error) {
	return cache.Record{}, store.Unavailable(errDown, "find link by locator")
}

// Store unavailability is a service failure, distinct from "not found".
func TestUnavailableStore(t *testing.T) {
	t.Parallel()
	c := cache.New(cache.Options{MaxEntries: 4})
	svc := New(c, downStore{}, Options{})

	_, err := svc.Lookup(context.Background(), "abc")
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, err, errDown)
	require.False(t, errors.Is(err, ErrNotFound))

	_, err = svc.Shorten(context.Background(), "https://example.com/x")
	require.ErrorIs(t, err, ErrUnavailable)
	require.Zero(t, c.Size())
}

// gatedStore holds FindByID and FindByLocator until release is closed. A
// cancelled ctx fails the held call the way a driver does.
type gatedStore struct {
	store.Store
	entered chan struct{}
	release chan struct{}
}

func newGatedStore(st store.Store) *gatedStore {
	return &gatedStore{Store: st, entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (s *gatedStore) wait(ctx context.Context, op string) error {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return store.Unavailable(ctx.Err(), op)
	}
}

func (s *gatedStore) FindByID(ctx context.Context, id string) (cache.Record, error) {
	if err := s.wait(ctx, "find link by id"); err != nil {
		return cache.Record{}, err
	}
	return s.Store.FindByID(ctx, id)
}

func (s *gatedStore) FindByLocator(ctx context.Context, locator string) (cache.Record, error) {
	if err := s.wait(ctx, "find link by locator"); err != nil {
		return cache.Record{}, err
	}
	return s.Store.FindByLocator(ctx, locator)
}

// The first caller of a coalesced lookup cancelling does not fail the
// callers waiting on the same store round trip.
func TestLookup_FirstCallerCancelDoesNotFailOthers(t *testing.T) {
	t.Parallel()

	clk := newClock()
	mem := memstore.New(clk.Now)
	require.NoError(t, mem.Create(context.Background(),
		cache.Record{ID: "abc", Locator: "https://example.com/a", ExpiresAt: clk.Now().Add(time.Hour)}))
	gs := newGatedStore(mem)
	c := cache.New(cache.Options{MaxEntries: 8, Clock: clk})
	svc := New(c, gs, Options{})

	firstCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.Lookup(firstCtx, "abc")
		firstDone <- err
	}()
	<-gs.entered

	type result struct {
		loc string
		err error
	}
	second := make(chan result, 1)
	go func() {
		loc, err := svc.Lookup(context.Background(), "abc")
		second <- result{loc, err}
	}()

	// Let the second caller join the in-flight call, then drop the first.
	time.Sleep(20 * time.Millisecond)
	cancel()
	time.Sleep(10 * time.Millisecond)
	close(gs.release)

	got := <-second
	require.NoError(t, got.err)
	require.Equal(t, "https://example.com/a", got.loc)
	<-firstDone

	rec, ok := c.GetByID("abc")
	require.True(t, ok)
	require.Equal(t, "https://example.com/a", rec.Locator)
}

func TestShorten_FirstCallerCancelDoesNotFailOthers(t *testing.T) {
	t.Parallel()

	clk := newClock()
	mem := memstore.New(clk.Now)
	gs := newGatedStore(mem)
	c := cache.New(cache.Options{MaxEntries: 8, Clock: clk})
	svc := New(c, gs, Options{NewID: seq("k1", "k2")})

	firstCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.Shorten(firstCtx, "https://example.com/x")
		firstDone <- err
	}()
	<-gs.entered

	type result struct {
		id  string
		err error
	}
	second := make(chan result, 1)
	go func() {
		id, err := svc.Shorten(context.Background(), "https://example.com/x")
		second <- result{id, err}
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	time.Sleep(10 * time.Millisecond)
	close(gs.release)

	got := <-second
	require.NoError(t, got.err)
	require.Equal(t, "k1", got.id)
	<-firstDone
	require.Equal(t, 1, mem.Len())
}
