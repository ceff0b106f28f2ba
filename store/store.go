// Package store defines the durable-store contract behind the record cache.
//
// The store is authoritative: the cache never holds a mapping the store does
// not. Implementations live in the subpackages (sqlstore, redisstore,
// memstore) and can be wrapped by breaker for timeouts and fast failure.
package store

import (
	"context"
	"time"

	"github.com/IvanBrykalov/linkcache/cache"
)

// Store is the persistence port used by the shortener service.
//
// Reads treat records whose ExpiresAt is not after the store's clock as
// absent. Every method may return ErrUnavailable.
type Store interface {
	// FindByID returns the live record for id, or ErrNotFound.
	FindByID(ctx context.Context, id string) (cache.Record, error)

	// FindByLocator returns the live record for locator, or ErrNotFound.
	FindByLocator(ctx context.Context, locator string) (cache.Record, error)

	// Create inserts rec. It returns ErrConflict when a live record already
	// owns rec.ID or rec.Locator. Expired rows never block a create.
	Create(ctx context.Context, rec cache.Record) error

	// RefreshExpiration sets the expiration of the live record id.
	// It returns ErrNotFound if there is none.
	RefreshExpiration(ctx context.Context, id string, expiresAt time.Time) error

	// DeleteExpired removes records expired at now and reports how many.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	Close() error
}

// Store implementations double as the sweeper's housekeeping hook.
var _ cache.Purger = (Store)(nil)
