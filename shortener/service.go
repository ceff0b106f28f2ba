// Package shortener is the handler-facing integration of the record cache
// with the durable store: read-through lookup by id and write-through
// create-or-reuse by locator.
package shortener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IvanBrykalov/linkcache/cache"
	"github.com/IvanBrykalov/linkcache/internal/errs"
	"github.com/IvanBrykalov/linkcache/internal/logging"
	"github.com/IvanBrykalov/linkcache/internal/singleflight"
	"github.com/IvanBrykalov/linkcache/store"
)

// DefaultMaxCreateAttempts bounds id-collision retries in Shorten.
const DefaultMaxCreateAttempts = 3

// Options configures a Service. The zero value is usable.
type Options struct {
	// NewID generates identifiers. Nil means NanoID(DefaultIDLength).
	NewID IDGenerator

	// MaxCreateAttempts bounds create retries after an id collision.
	// 0 means DefaultMaxCreateAttempts.
	MaxCreateAttempts int

	// KeepExpiryOnReuse disables the refresh of ExpiresAt when Shorten
	// returns an existing mapping.
	KeepExpiryOnReuse bool
}

// Service serves lookups and creations through the cache. Safe for
// concurrent use.
type Service struct {
	records cache.Records
	store   store.Store
	opt     Options

	byID      singleflight.Group[string, cache.Record]
	byLocator singleflight.Group[string, cache.Record]
}

// New wires records in front of st.
func New(records cache.Records, st store.Store, opt Options) *Service {
	if opt.NewID == nil {
		opt.NewID = NanoID(DefaultIDLength)
	}
	if opt.MaxCreateAttempts <= 0 {
		opt.MaxCreateAttempts = DefaultMaxCreateAttempts
	}
	return &Service{records: records, store: st, opt: opt}
}

// Lookup returns the locator for id.
func (s *Service) Lookup(ctx context.Context, id string) (string, error) {
	rec, err := s.Resolve(ctx, id)
	if err != nil {
		return "", err
	}
	return rec.Locator, nil
}

// Resolve returns the live record for id. A cache miss reads the store,
// extends the record's expiration there and fills the cache. Concurrent
// misses for one id share a single store round trip. Unknown ids are not
// cached.
//
// The shared round trip runs detached from the caller's cancellation, so
// one caller going away does not fail the others waiting on it. The store's
// own call timeout bounds it.
func (s *Service) Resolve(ctx context.Context, id string) (cache.Record, error) {
	if rec, ok := s.records.GetByID(id); ok {
		return rec, nil
	}
	shared := context.WithoutCancel(ctx)
	rec, err, _ := s.byID.Do(ctx, id, func() (cache.Record, error) {
		return s.fill(shared, id)
	})
	return rec, err
}

func (s *Service) fill(ctx context.Context, id string) (cache.Record, error) {
	rec, err := s.store.FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return cache.Record{}, ErrNotFound
	}
	if err != nil {
		return cache.Record{}, s.unavailable(ctx, err, "find link by id")
	}

	rec, err = s.refresh(ctx, rec)
	if errors.Is(err, store.ErrNotFound) {
		// Expired or purged between the read and the refresh.
		return cache.Record{}, ErrNotFound
	}
	if err != nil {
		return cache.Record{}, s.unavailable(ctx, err, "refresh link expiration")
	}

	s.records.Upsert(rec)
	return rec, nil
}

// Shorten returns the id mapped to locator, creating the mapping if the
// store has none. Submitting the same locator again before the mapping
// expires returns the same id. Like Resolve, the coalesced store work does
// not observe the caller's cancellation.
func (s *Service) Shorten(ctx context.Context, locator string) (string, error) {
	norm, err := NormalizeLocator(locator)
	if err != nil {
		return "", err
	}
	shared := context.WithoutCancel(ctx)
	rec, err, _ := s.byLocator.Do(ctx, norm, func() (cache.Record, error) {
		return s.createOrReuse(shared, norm)
	})
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (s *Service) createOrReuse(ctx context.Context, locator string) (cache.Record, error) {
	ctx = logging.WithAttrs(ctx, slog.String("locator", locator))

	if rec, ok := s.records.GetByLocator(locator); ok {
		got, err := s.reuse(ctx, rec)
		if !errors.Is(err, store.ErrNotFound) {
			return got, err
		}
		// The store dropped the mapping behind the cache's back.
		s.records.Remove(rec.ID)
		logging.Warn(ctx, "cached link missing from store", slog.String("id", rec.ID))
	}

	for attempt := 1; attempt <= s.opt.MaxCreateAttempts; attempt++ {
		rec, err := s.store.FindByLocator(ctx, locator)
		switch {
		case err == nil:
			got, err := s.reuse(ctx, rec)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return got, err
		case !errors.Is(err, store.ErrNotFound):
			return cache.Record{}, s.unavailable(ctx, err, "find link by locator")
		}

		id, err := s.opt.NewID()
		if err != nil {
			return cache.Record{}, errs.Wrap(err, "generate id")
		}
		rec = cache.Record{ID: id, Locator: locator, ExpiresAt: s.records.Deadline()}

		err = s.store.Create(ctx, rec)
		switch {
		case err == nil:
			s.records.Upsert(rec)
			logging.Debug(ctx, "link created", slog.String("id", id))
			return rec, nil
		case errors.Is(err, store.ErrConflict):
			// Either another writer created this locator, which the next
			// read picks up, or the id collided and a new one is drawn.
			logging.Debug(ctx, "create conflict", slog.String("id", id), slog.Int("attempt", attempt))
		default:
			return cache.Record{}, s.unavailable(ctx, err, "create link")
		}
	}
	return cache.Record{}, fmt.Errorf("%w after %d attempts", ErrExhausted, s.opt.MaxCreateAttempts)
}

// reuse returns an existing mapping, extending its expiration in the store
// and the cache unless KeepExpiryOnReuse is set. store.ErrNotFound means the
// store no longer holds it.
func (s *Service) reuse(ctx context.Context, rec cache.Record) (cache.Record, error) {
	if !s.opt.KeepExpiryOnReuse {
		var err error
		if rec, err = s.refresh(ctx, rec); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return cache.Record{}, err
			}
			return cache.Record{}, s.unavailable(ctx, err, "refresh link expiration")
		}
	}
	s.records.Upsert(rec)
	return rec, nil
}

// refresh moves rec's expiration to the cache deadline in the store first,
// so the cache never runs ahead of it. An expiration is never moved back.
// Store failures other than ErrNotFound and unavailability leave rec as the
// store returned it.
func (s *Service) refresh(ctx context.Context, rec cache.Record) (cache.Record, error) {
	exp := s.records.Deadline()
	if !exp.After(rec.ExpiresAt) {
		return rec, nil
	}

	err := s.store.RefreshExpiration(ctx, rec.ID, exp)
	switch {
	case err == nil:
		rec.ExpiresAt = exp
		return rec, nil
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrUnavailable):
		return rec, err
	default:
		logging.Warn(ctx, "refresh link expiration failed",
			slog.String("id", rec.ID),
			slog.Any("err", errs.Loggable(err)),
		)
		return rec, nil
	}
}

func (s *Service) unavailable(ctx context.Context, err error, op string) error {
	logging.Error(ctx, "store call failed", slog.String("op", op), slog.Any("err", errs.Loggable(err)))
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
