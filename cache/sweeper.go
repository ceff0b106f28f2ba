package cache

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/IvanBrykalov/linkcache/internal/errs"
	"github.com/IvanBrykalov/linkcache/internal/logging"
)

// Purger deletes expired mappings from the durable store. The sweeper calls
// it once per tick when configured; failures are logged, never fatal.
type Purger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SweeperConfig configures a Sweeper.
type SweeperConfig struct {
	// Interval between ticks. 0 means one hour.
	Interval time.Duration

	// MaxEntries overrides the cache's bound. 0 uses Options.MaxEntries.
	MaxEntries int

	// Purger is optional store housekeeping run after the cache passes.
	Purger Purger

	// PurgeTimeout bounds one Purger call. 0 means 30s.
	PurgeTimeout time.Duration
}

// SweepStats reports what one tick did.
type SweepStats struct {
	Expired          int
	Repaired         int
	EvictedByID      int
	EvictedByLocator int
	Purged           int64
	PurgeErr         error
	Duration         time.Duration
}

// Sweeper is the background reclamation task. Each tick it purges expired
// records from both indices and then evicts soonest-expiring records until
// each index is within its bound. Access recency plays no part in eviction.
//
// The sweeper owns its goroutine: Start launches it, Stop cancels and waits.
type Sweeper struct {
	c   *Cache
	cfg SweeperConfig

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewSweeper binds a sweeper to c. It does not start it.
func NewSweeper(c *Cache, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = c.opt.MaxEntries
	}
	if cfg.PurgeTimeout <= 0 {
		cfg.PurgeTimeout = 30 * time.Second
	}
	return &Sweeper{c: c, cfg: cfg}
}

// Start launches the ticker goroutine. Calling Start on a running sweeper is
// a no-op. ctx carries the logger; cancelling it stops the sweeper too.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx = logging.WithAttrs(ctx, slog.String("component", "cache.sweeper"))
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running = true

	go s.loop(ctx, s.done)

	logging.Info(ctx, "sweeper started",
		slog.Duration("interval", s.cfg.Interval),
		slog.Int("max_entries", s.cfg.MaxEntries),
	)
}

// Stop cancels the loop and waits for an in-progress tick to finish.
// It is safe to call multiple times.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one tick synchronously and reports what it removed.
func (s *Sweeper) Sweep(ctx context.Context) SweepStats {
	start := time.Now()
	var st SweepStats

	st.Expired = s.expire(s.c.now())
	st.Repaired = s.repair()
	st.EvictedByID = s.shrink(s.c.byID, s.c.dropByID)
	st.EvictedByLocator = s.shrink(s.c.byLocator, s.c.dropByLocator)

	if s.cfg.Purger != nil {
		st.Purged, st.PurgeErr = s.purge(ctx)
	}

	st.Duration = time.Since(start)
	s.c.opt.Metrics.Size(s.c.byID.len())
	s.c.opt.Metrics.Sweep(st)

	logging.Debug(ctx, "sweep finished",
		slog.Int("expired", st.Expired),
		slog.Int("repaired", st.Repaired),
		slog.Int("evicted_by_id", st.EvictedByID),
		slog.Int("evicted_by_locator", st.EvictedByLocator),
		slog.Int64("purged", st.Purged),
		slog.Duration("took", st.Duration),
	)
	return st
}

// expire removes every record that is expired at now, index by index.
// Each removal takes its twin in the other index with it.
func (s *Sweeper) expire(now time.Time) int {
	dead := expiredAt(now)
	n := 0
	for _, rec := range s.c.byID.collect(dead) {
		if s.c.dropByID(rec, dead, EvictTTL) {
			n++
		}
	}
	// Whatever is left in the locator-index lost its id twin to a race or
	// was written after the pass above started.
	for _, rec := range s.c.byLocator.collect(dead) {
		if s.c.dropByLocator(rec, dead, EvictTTL) {
			n++
		}
	}
	return n
}

// repair drops locator entries whose identifier-index twin is gone or now
// names another locator. Upsert writes the identifier-index first, so such an
// entry can only be the leftover of a removal that raced with a write.
func (s *Sweeper) repair() int {
	n := 0
	for _, rec := range s.c.byLocator.snapshot() {
		twin, ok := s.c.byID.get(rec.ID)
		if ok && twin.Locator == rec.Locator {
			continue
		}
		if _, removed := s.c.byLocator.removeIf(rec.Locator, rec.Equal); removed {
			n++
		}
	}
	return n
}

// shrink evicts soonest-expiring records from ix until it is within the
// bound. Candidates come from a snapshot; one that was rewritten since the
// snapshot no longer matches and is skipped.
func (s *Sweeper) shrink(ix *index, drop func(Record, func(Record) bool, EvictReason) bool) int {
	if ix.len() <= s.cfg.MaxEntries {
		return 0
	}

	h := byExpiry(ix.snapshot())
	heap.Init(&h)

	n := 0
	for ix.len() > s.cfg.MaxEntries && h.Len() > 0 {
		victim := heap.Pop(&h).(Record)
		if drop(victim, victim.Equal, EvictCapacity) {
			n++
		}
	}
	return n
}

func (s *Sweeper) purge(ctx context.Context) (int64, error) {
	pctx, cancel := context.WithTimeout(ctx, s.cfg.PurgeTimeout)
	defer cancel()

	n, err := s.cfg.Purger.DeleteExpired(pctx, s.c.now())
	if err != nil {
		logging.Warn(ctx, "store housekeeping failed", slog.Any("err", errs.Loggable(err)))
		return 0, errs.Wrap(err, "delete expired links")
	}
	return n, nil
}

// byExpiry is a min-heap of records ordered by ExpiresAt, ties broken by ID
// so eviction order is deterministic.
type byExpiry []Record

func (h byExpiry) Len() int { return len(h) }
func (h byExpiry) Less(i, j int) bool {
	if h[i].ExpiresAt.Equal(h[j].ExpiresAt) {
		return h[i].ID < h[j].ID
	}
	return h[i].ExpiresAt.Before(h[j].ExpiresAt)
}
func (h byExpiry) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *byExpiry) Push(x any)   { *h = append(*h, x.(Record)) }
func (h *byExpiry) Pop() any {
	old := *h
	n := len(old)
	rec := old[n-1]
	*h = old[:n-1]
	return rec
}
