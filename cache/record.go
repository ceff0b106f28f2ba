package cache

import "time"

// Record is one id <-> locator mapping with its expiration instant.
// Records are values: the two indices hold independent copies.
type Record struct {
	ID        string
	Locator   string
	ExpiresAt time.Time
}

// Live reports whether r has not yet expired at now.
func (r Record) Live(now time.Time) bool {
	return r.ExpiresAt.After(now)
}

// Equal reports value equality, comparing instants with time.Time.Equal.
func (r Record) Equal(o Record) bool {
	return r.ID == o.ID && r.Locator == o.Locator && r.ExpiresAt.Equal(o.ExpiresAt)
}

// sameMapping reports whether r and o describe the same id <-> locator pair,
// regardless of expiration.
func (r Record) sameMapping(o Record) bool {
	return r.ID == o.ID && r.Locator == o.Locator
}
