package state

import (
	"errors"
	"fmt"
)

// ErrStorageUnavailable marks failures of the local storage engine itself,
// as opposed to a key simply being absent.
var ErrStorageUnavailable = errors.New("local storage unavailable")

// Unavailable wraps err so that errors.Is(err, ErrStorageUnavailable) holds.
func Unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}
