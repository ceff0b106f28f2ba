// Package memstore is an in-process Store used for development, the bench
// command and tests. It has the same expiry and uniqueness semantics as the
// durable drivers.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/IvanBrykalov/linkcache/cache"
	"github.com/IvanBrykalov/linkcache/store"
)

// Store is a mutex-guarded pair of maps.
type Store struct {
	mu    sync.RWMutex
	byID  map[string]cache.Record
	byLoc map[string]string // locator -> id
	now   func() time.Time
}

var _ store.Store = (*Store)(nil)

// New returns an empty store. now overrides the clock; nil means time.Now.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		byID:  make(map[string]cache.Record),
		byLoc: make(map[string]string),
		now:   now,
	}
}

func (s *Store) FindByID(ctx context.Context, id string) (cache.Record, error) {
	if err := ctx.Err(); err != nil {
		return cache.Record{}, store.Unavailable(err, "find link by id")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok || !rec.Live(s.now()) {
		return cache.Record{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *Store) FindByLocator(ctx context.Context, locator string) (cache.Record, error) {
	if err := ctx.Err(); err != nil {
		return cache.Record{}, store.Unavailable(err, "find link by locator")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byLoc[locator]
	if !ok {
		return cache.Record{}, store.ErrNotFound
	}
	rec, ok := s.byID[id]
	if !ok || rec.Locator != locator || !rec.Live(s.now()) {
		return cache.Record{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *Store) Create(ctx context.Context, rec cache.Record) error {
	if err := ctx.Err(); err != nil {
		return store.Unavailable(err, "create link")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if old, ok := s.byID[rec.ID]; ok {
		if old.Live(now) {
			return store.ErrConflict
		}
		s.deleteLocked(old)
	}
	if id, ok := s.byLoc[rec.Locator]; ok {
		if old, ok := s.byID[id]; ok && old.Locator == rec.Locator {
			if old.Live(now) {
				return store.ErrConflict
			}
			s.deleteLocked(old)
		}
	}
	s.byID[rec.ID] = rec
	s.byLoc[rec.Locator] = rec.ID
	return nil
}

func (s *Store) RefreshExpiration(ctx context.Context, id string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return store.Unavailable(err, "refresh link expiration")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok || !rec.Live(s.now()) {
		return store.ErrNotFound
	}
	rec.ExpiresAt = expiresAt
	s.byID[id] = rec
	return nil
}

func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, store.Unavailable(err, "delete expired links")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, rec := range s.byID {
		if rec.ExpiresAt.Before(now) {
			s.deleteLocked(rec)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *Store) Close() error { return nil }

func (s *Store) deleteLocked(rec cache.Record) {
	delete(s.byID, rec.ID)
	if s.byLoc[rec.Locator] == rec.ID {
		delete(s.byLoc, rec.Locator)
	}
}
