// Package cache is the in-memory layer in front of the link store: a
// dual-indexed, time-bounded, size-bounded record cache plus the background
// sweeper that reclaims it.
//
// Design
//
//   - Two views: one index keyed by short id, one keyed by locator (the long
//     URL). Both hold value copies of the same Record. There is no shared
//     pointer between them; every mutating operation keeps them in lockstep
//     and the sweeper removes entries from both by matched key.
//
//   - Concurrency: each index is split into power-of-two shards guarded by
//     their own RWMutex (xxhash picks the shard). Upsert and eviction touch
//     both indices but are not one critical section; brief divergence is
//     tolerated and repaired by the next read or sweep.
//
//   - Expiration: every hit re-checks ExpiresAt, so an expired record is
//     never served even between sweeps. Expired entries found by a read are
//     removed from both indices with compare-and-delete.
//
//   - Size bound: the Sweeper evicts the record with the soonest ExpiresAt
//     first (FIFO by expiration, not LRU) until each index holds at most
//     MaxEntries records.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Size/Sweep signals.
//     NoopMetrics is the default; metrics/prom exports them to Prometheus.
//
// Basic usage
//
//	c := cache.New(cache.Options{MaxEntries: 100, DefaultTTL: 24 * time.Hour})
//	c.Upsert(cache.Record{ID: "zz9", Locator: "https://example.com/x", ExpiresAt: c.Deadline()})
//	if rec, ok := c.GetByLocator("https://example.com/x"); ok {
//	    _ = rec.ID // "zz9"
//	}
//
// Running the sweeper
//
//	sw := cache.NewSweeper(c, cache.SweeperConfig{Interval: time.Hour, Purger: store})
//	sw.Start(ctx)
//	defer sw.Stop()
package cache
