package msentropy

import (
	"errors"
	"fmt"
)

// ErrNotFound is the common sentinel for lookups against state the
// repository does not have. More specific errors unwrap to it.
var ErrNotFound = errors.New("not found")

// ErrChargeNotFound indicates a query against a charge state with no shard
// on disk.
type ErrChargeNotFound struct {
	Charge int16
}

func (e *ErrChargeNotFound) Error() string {
	return fmt.Sprintf("charge state %d not found in the repository", e.Charge)
}

func (e *ErrChargeNotFound) Unwrap() error { return ErrNotFound }
