// Package breaker decorates a Store with a per-call timeout and a circuit
// breaker, so a failing store is reported as unavailable quickly instead of
// stalling every request behind its timeout.
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/IvanBrykalov/linkcache/cache"
	"github.com/IvanBrykalov/linkcache/internal/logging"
	"github.com/IvanBrykalov/linkcache/store"
)

// Config configures the decorator.
type Config struct {
	// Name identifies the breaker in logs. Defaults to "store".
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. 0 means 5.
	MaxFailures uint32

	// OpenTimeout is how long the breaker stays open before letting a probe
	// through. 0 means 30s.
	OpenTimeout time.Duration

	// Timeout bounds every call. 0 means 2s.
	Timeout time.Duration
}

// Store is a store.Store guarded by a circuit breaker.
type Store struct {
	next    store.Store
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
}

var _ store.Store = (*Store)(nil)

// New wraps next. ctx carries the logger used for state-change events.
func New(ctx context.Context, next store.Store, cfg Config) *Store {
	if cfg.Name == "" {
		cfg.Name = "store"
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	logCtx := logging.WithAttrs(ctx, slog.String("component", "store.breaker"))

	maxFailures := cfg.MaxFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn(logCtx, "store breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
		IsSuccessful: isSuccessful,
	})
	return &Store{next: next, cb: cb, timeout: cfg.Timeout}
}

// isSuccessful decides what trips the breaker: only store faults do.
// Misses, conflicts and the caller giving up are normal outcomes.
func isSuccessful(err error) bool {
	return err == nil ||
		errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, store.ErrConflict) ||
		errors.Is(err, context.Canceled)
}

// State reports the breaker state (closed, half-open, open).
func (s *Store) State() gobreaker.State { return s.cb.State() }

func call[T any](ctx context.Context, s *Store, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	v, err := s.cb.Execute(func() (any, error) {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return fn(cctx)
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) ||
			errors.Is(err, context.DeadlineExceeded) {
			return zero, store.Unavailable(err, op)
		}
		return zero, err
	}
	return v.(T), nil
}

func (s *Store) FindByID(ctx context.Context, id string) (cache.Record, error) {
	return call(ctx, s, "find link by id", func(ctx context.Context) (cache.Record, error) {
		return s.next.FindByID(ctx, id)
	})
}

func (s *Store) FindByLocator(ctx context.Context, locator string) (cache.Record, error) {
	return call(ctx, s, "find link by locator", func(ctx context.Context) (cache.Record, error) {
		return s.next.FindByLocator(ctx, locator)
	})
}

func (s *Store) Create(ctx context.Context, rec cache.Record) error {
	_, err := call(ctx, s, "create link", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.next.Create(ctx, rec)
	})
	return err
}

func (s *Store) RefreshExpiration(ctx context.Context, id string, expiresAt time.Time) error {
	_, err := call(ctx, s, "refresh link expiration", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.next.RefreshExpiration(ctx, id, expiresAt)
	})
	return err
}

func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return call(ctx, s, "delete expired links", func(ctx context.Context) (int64, error) {
		return s.next.DeleteExpired(ctx, now)
	})
}

// Unwrap returns the decorated store.
func (s *Store) Unwrap() store.Store { return s.next }

// Close closes the wrapped store; it bypasses the breaker.
func (s *Store) Close() error { return s.next.Close() }
