// Package util contains internal helpers (hashing, sharding, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import "github.com/cespare/xxhash/v2"

// KeyHash hashes an index key with 64-bit xxHash.
// Identifiers are short and locators can be long URLs; xxhash keeps both
// cheap without allocating.
func KeyHash(k string) uint64 {
	return xxhash.Sum64String(k)
}
