package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no live record matched. It is a control-path result.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict means a uniqueness constraint rejected a create: another
	// writer won the race for the locator, or the id is taken.
	ErrConflict = errors.New("store: conflict")

	// ErrUnavailable means the store could not be reached or timed out.
	// The driver error stays in the chain.
	ErrUnavailable = errors.New("store: unavailable")
)

// Unavailable wraps a driver error so that errors.Is reports both
// ErrUnavailable and err.
func Unavailable(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
