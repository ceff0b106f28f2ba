package cache

import (
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/linkcache/internal/util"
)

// Cache is the dual-index record cache: one sharded index keyed by id and
// one keyed by locator, holding value copies of the same logical records.
// The two views are kept in lockstep by every mutating operation rather
// than by a shared pointer; short-lived divergence between them is
// tolerated and repaired by the next read or sweep.
//
// All methods are safe for concurrent use by multiple goroutines.
type Cache struct {
	byID      *index
	byLocator *index
	closed    atomic.Bool

	opt Options

	_      util.CacheLinePad
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
}

// Stats is a point-in-time view of the hit/miss counters.
type Stats struct {
	Hits   int64
	Misses int64
}

// New constructs a Cache. It panics if opt.MaxEntries <= 0.
// Defaults:
//   - nil Metrics   -> NoopMetrics
//   - Shards <= 0   -> auto, rounded up to the next power of two
//   - DefaultTTL 0  -> DefaultLiveTime
func New(opt Options) *Cache {
	if opt.MaxEntries <= 0 {
		panic("cache: MaxEntries must be > 0")
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.DefaultTTL <= 0 {
		opt.DefaultTTL = DefaultLiveTime
	}
	shards := util.ShardCount(opt.Shards)

	return &Cache{
		byID:      newIndex(shards, opt.MaxEntries),
		byLocator: newIndex(shards, opt.MaxEntries),
		opt:       opt,
	}
}

// GetByID returns the live record for id, or false. An expired entry is a
// miss and is removed from both indices on the spot.
func (c *Cache) GetByID(id string) (Record, bool) {
	if c.closed.Load() {
		return Record{}, false
	}
	rec, ok := c.byID.get(id)
	return c.checkHit(rec, ok, c.dropByID)
}

// GetByLocator returns the live record for locator, or false.
func (c *Cache) GetByLocator(locator string) (Record, bool) {
	if c.closed.Load() {
		return Record{}, false
	}
	rec, ok := c.byLocator.get(locator)
	return c.checkHit(rec, ok, c.dropByLocator)
}

func (c *Cache) checkHit(rec Record, ok bool, drop func(Record, func(Record) bool, EvictReason) bool) (Record, bool) {
	if !ok {
		c.miss()
		return Record{}, false
	}
	if now := c.now(); !rec.Live(now) {
		drop(rec, expiredAt(now), EvictTTL)
		c.miss()
		return Record{}, false
	}
	c.hits.Add(1)
	c.opt.Metrics.Hit()
	return rec, true
}

func (c *Cache) miss() {
	c.misses.Add(1)
	c.opt.Metrics.Miss()
}

// Upsert inserts or replaces rec in both indices, identifier-index first.
// If rec supersedes an entry with the same id but another locator (or the
// same locator but another id), the stale twin is removed before return.
func (c *Cache) Upsert(rec Record) {
	if c.closed.Load() {
		return
	}

	stored, prev, hadPrev := c.byID.put(rec.ID, rec)
	_, prevLoc, hadPrevLoc := c.byLocator.put(rec.Locator, stored)

	if hadPrev && prev.Locator != rec.Locator {
		// The id moved to a new locator; the old locator must not keep
		// pointing at it.
		if old, ok := c.byLocator.removeIf(prev.Locator, func(r Record) bool { return r.ID == rec.ID }); ok {
			c.evicted(old, EvictSuperseded)
		}
	}
	if hadPrevLoc && prevLoc.ID != rec.ID {
		// The locator now maps to a new id; drop the old id's entry if it
		// still claims this locator.
		if old, ok := c.byID.removeIf(prevLoc.ID, func(r Record) bool { return r.Locator == rec.Locator }); ok {
			c.evicted(old, EvictSuperseded)
		}
	}
	c.opt.Metrics.Size(c.byID.len())
}

// Remove drops the mapping for id from both indices. It reports whether an
// entry was present. Explicit removal is not reported as an eviction.
// A closed cache ignores it.
func (c *Cache) Remove(id string) bool {
	if c.closed.Load() {
		return false
	}
	removed, ok := c.byID.removeIf(id, func(Record) bool { return true })
	if !ok {
		return false
	}
	c.byLocator.removeIf(removed.Locator, twinOf(removed))
	c.opt.Metrics.Size(c.byID.len())
	return true
}

// Size returns the identifier-index entry count.
func (c *Cache) Size() int { return c.byID.len() }

// Len returns the entry counts of the identifier-index and the
// locator-index. Outside of in-flight writes and sweeps they are equal.
func (c *Cache) Len() (byID, byLocator int) {
	return c.byID.len(), c.byLocator.len()
}

// Range calls fn for a copy of every record in the identifier-index until fn
// returns false. Expired records that have not been swept are included.
func (c *Cache) Range(fn func(Record) bool) {
	for _, rec := range c.byID.snapshot() {
		if !fn(rec) {
			return
		}
	}
}

// Stats returns the hit/miss counters.
func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Deadline returns now + DefaultTTL.
func (c *Cache) Deadline() time.Time { return c.now().Add(c.opt.DefaultTTL) }

// TTL returns the configured live-time.
func (c *Cache) TTL() time.Duration { return c.opt.DefaultTTL }

// MaxEntries returns the configured size bound.
func (c *Cache) MaxEntries() int { return c.opt.MaxEntries }

// Close marks the cache closed. Reads miss and writes are ignored afterwards.
func (c *Cache) Close() error {
	c.closed.Store(true)
	return nil
}

// ---- helpers ----

// dropByID removes the identifier-index entry for rec.ID when pred holds,
// then its twin in the locator-index.
func (c *Cache) dropByID(rec Record, pred func(Record) bool, reason EvictReason) bool {
	removed, ok := c.byID.removeIf(rec.ID, pred)
	if !ok {
		return false
	}
	c.byLocator.removeIf(removed.Locator, twinOf(removed))
	c.evicted(removed, reason)
	return true
}

// dropByLocator removes the locator-index entry for rec.Locator when pred
// holds, then its twin in the identifier-index.
func (c *Cache) dropByLocator(rec Record, pred func(Record) bool, reason EvictReason) bool {
	removed, ok := c.byLocator.removeIf(rec.Locator, pred)
	if !ok {
		return false
	}
	c.byID.removeIf(removed.ID, twinOf(removed))
	c.evicted(removed, reason)
	return true
}

func (c *Cache) evicted(rec Record, reason EvictReason) {
	c.opt.Metrics.Evict(reason)
	c.opt.Metrics.Size(c.byID.len())
	if cb := c.opt.OnEvict; cb != nil {
		cb(rec, reason)
	}
}

func (c *Cache) now() time.Time {
	if c.opt.Clock != nil {
		return time.Unix(0, c.opt.Clock.NowUnixNano())
	}
	return time.Now()
}

// twinOf matches the other index's copy of removed. A copy that carries a
// later expiration belongs to a write that raced with the removal and will
// be completed in both indices, so it is left alone.
func twinOf(removed Record) func(Record) bool {
	return func(r Record) bool {
		return r.sameMapping(removed) && !r.ExpiresAt.After(removed.ExpiresAt)
	}
}

func expiredAt(now time.Time) func(Record) bool {
	return func(r Record) bool { return !r.Live(now) }
}
