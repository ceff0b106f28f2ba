package shortener

import "errors"

var (
	// ErrNotFound means the id is unknown or expired.
	ErrNotFound = errors.New("shortener: link not found")

	// ErrInvalidLocator means the submitted locator is not an absolute
	// http(s) URL.
	ErrInvalidLocator = errors.New("shortener: invalid locator")

	// ErrUnavailable means the store could not serve the request.
	ErrUnavailable = errors.New("shortener: service unavailable")

	// ErrExhausted means every create attempt collided with an existing id.
	ErrExhausted = errors.New("shortener: no free identifier")
)
