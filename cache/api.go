package cache

import "time"

// Records is the contract request handlers use. *Cache implements it.
// All methods are safe for concurrent use and never fail: absence is
// reported through the boolean, not an error.
type Records interface {
	// GetByID returns the live record for id. Expired entries are never
	// returned, even if no sweep has removed them yet.
	GetByID(id string) (Record, bool)

	// GetByLocator is the symmetric lookup by locator.
	GetByLocator(locator string) (Record, bool)

	// Upsert writes rec into both indices, identifier-index first. When it
	// returns, the locator-index does not point at an id that the
	// identifier-index lacks.
	Upsert(rec Record)

	// Remove drops the mapping for id from both indices and reports whether
	// it was present.
	Remove(id string) bool

	// Size is the identifier-index entry count; approximate under
	// concurrent mutation.
	Size() int

	// Deadline returns now + the configured live-time.
	Deadline() time.Time
}

var _ Records = (*Cache)(nil)
