// Package storetest is a conformance suite shared by the Store drivers.
package storetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/linkcache/cache"
	"github.com/IvanBrykalov/linkcache/store"
)

// Clock is a settable time source handed to the driver under test.
type Clock struct{ ns atomic.Int64 }

// NewClock starts at the current wall time, truncated to milliseconds so
// that drivers with millisecond precision round-trip it exactly.
func NewClock() *Clock {
	c := &Clock{}
	c.ns.Store(time.Now().Truncate(time.Millisecond).UnixNano())
	return c
}

func (c *Clock) Now() time.Time          { return time.Unix(0, c.ns.Load()) }
func (c *Clock) Advance(d time.Duration) { c.ns.Add(int64(d)) }

// Suite describes a driver.
type Suite struct {
	// New returns an empty store reading time from now.
	New func(t *testing.T, now func() time.Time) store.Store

	// NativeExpiry is set for drivers that expire records on their own;
	// DeleteExpired then reports 0.
	NativeExpiry bool
}

// Run executes the conformance suite.
func Run(t *testing.T, s Suite) {
	t.Run("FindMissing", func(t *testing.T) {
		st := s.New(t, NewClock().Now)
		ctx := context.Background()

		_, err := st.FindByID(ctx, "zz9")
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = st.FindByLocator(ctx, "https://example.com/none")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("CreateAndFind", func(t *testing.T) {
		clk := NewClock()
		st := s.New(t, clk.Now)
		ctx := context.Background()

		rec := cache.Record{ID: "abc", Locator: "https://example.com/a", ExpiresAt: clk.Now().Add(time.Hour)}
		require.NoError(t, st.Create(ctx, rec))

		got, err := st.FindByID(ctx, "abc")
		require.NoError(t, err)
		require.True(t, got.Equal(rec), "got %+v", got)

		got, err = st.FindByLocator(ctx, rec.Locator)
		require.NoError(t, err)
		require.True(t, got.Equal(rec), "got %+v", got)
	})

	t.Run("UniqueIDAndLocator", func(t *testing.T) {
		clk := NewClock()
		st := s.New(t, clk.Now)
		ctx := context.Background()
		exp := clk.Now().Add(time.Hour)

		require.NoError(t, st.Create(ctx, cache.Record{ID: "a", Locator: "https://x/1", ExpiresAt: exp}))
		require.ErrorIs(t, st.Create(ctx, cache.Record{ID: "a", Locator: "https://x/2", ExpiresAt: exp}), store.ErrConflict)
		require.ErrorIs(t, st.Create(ctx, cache.Record{ID: "b", Locator: "https://x/1", ExpiresAt: exp}), store.ErrConflict)

		got, err := st.FindByLocator(ctx, "https://x/1")
		require.NoError(t, err)
		require.Equal(t, "a", got.ID)
		_, err = st.FindByLocator(ctx, "https://x/2")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("ExpiredIsAbsent", func(t *testing.T) {
		clk := NewClock()
		st := s.New(t, clk.Now)
		ctx := context.Background()

		require.NoError(t, st.Create(ctx, cache.Record{ID: "a", Locator: "https://x/1", ExpiresAt: clk.Now().Add(time.Minute)}))
		clk.Advance(time.Minute)

		_, err := st.FindByID(ctx, "a")
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = st.FindByLocator(ctx, "https://x/1")
		require.ErrorIs(t, err, store.ErrNotFound)
		require.ErrorIs(t, st.RefreshExpiration(ctx, "a", clk.Now().Add(time.Hour)), store.ErrNotFound)

		// Expired rows never block a new mapping for the same id or locator.
		fresh := cache.Record{ID: "a", Locator: "https://x/2", ExpiresAt: clk.Now().Add(time.Hour)}
		require.NoError(t, st.Create(ctx, fresh))
		require.NoError(t, st.Create(ctx, cache.Record{ID: "b", Locator: "https://x/1", ExpiresAt: clk.Now().Add(time.Hour)}))

		got, err := st.FindByLocator(ctx, "https://x/1")
		require.NoError(t, err)
		require.Equal(t, "b", got.ID)
		got, err = st.FindByID(ctx, "a")
		require.NoError(t, err)
		require.True(t, got.Equal(fresh), "got %+v", got)
	})

	t.Run("RefreshExpiration", func(t *testing.T) {
		clk := NewClock()
		st := s.New(t, clk.Now)
		ctx := context.Background()

		require.NoError(t, st.Create(ctx, cache.Record{ID: "a", Locator: "https://x/1", ExpiresAt: clk.Now().Add(time.Minute)}))
		later := clk.Now().Add(24 * time.Hour)
		require.NoError(t, st.RefreshExpiration(ctx, "a", later))
		require.ErrorIs(t, st.RefreshExpiration(ctx, "missing", later), store.ErrNotFound)

		clk.Advance(time.Hour)
		got, err := st.FindByLocator(ctx, "https://x/1")
		require.NoError(t, err)
		require.True(t, got.ExpiresAt.Equal(later), "got %v", got.ExpiresAt)
	})

	t.Run("DeleteExpired", func(t *testing.T) {
		clk := NewClock()
		st := s.New(t, clk.Now)
		ctx := context.Background()

		require.NoError(t, st.Create(ctx, cache.Record{ID: "a", Locator: "https://x/1", ExpiresAt: clk.Now().Add(time.Minute)}))
		require.NoError(t, st.Create(ctx, cache.Record{ID: "b", Locator: "https://x/2", ExpiresAt: clk.Now().Add(2 * time.Minute)}))
		require.NoError(t, st.Create(ctx, cache.Record{ID: "c", Locator: "https://x/3", ExpiresAt: clk.Now().Add(time.Hour)}))
		clk.Advance(5 * time.Minute)

		n, err := st.DeleteExpired(ctx, clk.Now())
		require.NoError(t, err)
		if s.NativeExpiry {
			require.Zero(t, n)
		} else {
			require.Equal(t, int64(2), n)
		}

		_, err = st.FindByID(ctx, "c")
		require.NoError(t, err)
		_, err = st.FindByID(ctx, "a")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	// Concurrent creates for one locator: exactly one wins.
	t.Run("CreateRace", func(t *testing.T) {
		clk := NewClock()
		st := s.New(t, clk.Now)
		ctx := context.Background()

		const n = 8
		var wins atomic.Int64
		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func(i int) {
				defer wg.Done()
				id := string(rune('a' + i))
				err := st.Create(ctx, cache.Record{ID: id, Locator: "https://race", ExpiresAt: clk.Now().Add(time.Hour)})
				if err == nil {
					wins.Add(1)
					return
				}
				assert.ErrorIs(t, err, store.ErrConflict)
			}(i)
		}
		wg.Wait()
		require.Equal(t, int64(1), wins.Load())
	})
}
