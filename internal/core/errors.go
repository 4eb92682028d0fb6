// Package core implements the DrivePool engine: the account registry,
// the folder/file hierarchy store, placement policies, the drive façade,
// and state persistence.
package core

import (
	"errors"
	"fmt"
)

// Error taxonomy. Mutating operations return structured results carrying
// these so batch operations can report partial success; lookups on unknown
// ids prefer nil/empty results for caller convenience.
var (
	// ErrNotFound marks an unknown folder, file, or account id.
	ErrNotFound = errors.New("not found")

	// ErrCapacityExceeded marks a file no active account can absorb.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrInvalidOperation marks a structurally invalid request: a cyclic
	// move, a folder moved into itself, an empty name.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrPersistenceCorrupt marks an unreadable saved state. Load recovers
	// from it by reinitializing; it is never surfaced to callers.
	ErrPersistenceCorrupt = errors.New("persisted state corrupt")

	// errUsageViolation marks a usage-counter defect: a delta that would
	// drive an account negative or past its capacity. This is an internal
	// invariant failure, not a user-facing error path.
	errUsageViolation = errors.New("usage counter violation")
)

// ItemError records the failure of a single item inside a batch operation.
type ItemError struct {
	ID  string `json:"id"`
	Err string `json:"error"`
}

func itemError(id string, err error) ItemError {
	return ItemError{ID: id, Err: err.Error()}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}
