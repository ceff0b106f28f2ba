package cache

import "time"

// EvictReason explains why an entry was removed.
type EvictReason int

const (
	// EvictTTL: the entry expired (found by a read or by a sweep).
	EvictTTL EvictReason = iota
	// EvictCapacity: removed by the sweeper to bring an index within MaxEntries.
	EvictCapacity
	// EvictSuperseded: a newer write for the same id or locator replaced the mapping.
	EvictSuperseded
)

func (r EvictReason) String() string {
	switch r {
	case EvictTTL:
		return "ttl"
	case EvictCapacity:
		return "capacity"
	case EvictSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries int)
	Sweep(stats SweepStats)
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Options configures a Cache. Zero values are safe except MaxEntries:
//   - Shards <= 0  => auto (rounded up to power of two)
//   - nil Metrics  => NoopMetrics
//   - nil Clock    => wall clock
type Options struct {
	// MaxEntries bounds each index; the sweeper evicts down to it. Must be > 0.
	MaxEntries int

	// Shards per index. 0 picks ≈ 2*GOMAXPROCS rounded to a power of two.
	Shards int

	// DefaultTTL is the live-time granted by Deadline. 0 means 24h.
	DefaultTTL time.Duration

	// OnEvict is called after an entry left both indices. It runs outside
	// shard locks but on the goroutine that removed the entry; keep it short.
	OnEvict func(rec Record, reason EvictReason)

	Metrics Metrics

	// Clock overrides the time source (tests). Nil => time.Now().
	Clock Clock
}

// DefaultLiveTime is the live-time used when Options.DefaultTTL is unset.
const DefaultLiveTime = 24 * time.Hour
