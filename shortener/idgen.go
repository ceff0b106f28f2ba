package shortener

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// DefaultIDLength matches the nanoid default: 21 URL-safe characters, about
// 126 bits of randomness.
const DefaultIDLength = 21

// IDGenerator returns a fresh random identifier.
type IDGenerator func() (string, error)

// NanoID returns a generator of URL-safe nanoid identifiers of length n.
// n <= 0 means DefaultIDLength.
func NanoID(n int) IDGenerator {
	if n <= 0 {
		n = DefaultIDLength
	}
	return func() (string, error) { return gonanoid.New(n) }
}
