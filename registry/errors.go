package registry

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested mapping does not exist.
var ErrNotFound = errors.New("mapping not found")

// CorruptionError is returned when a registry layer file exists but cannot
// be parsed or violates structural invariants. Loading fails closed on it:
// the registry must never silently run with a partially loaded or empty
// state when a load was attempted.
type CorruptionError struct {
	Path string
	Err  error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("registry file %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}

// ConflictError is returned when an operation would silently change an
// existing accepted mapping to a different canonical id without the
// overwrite flag.
type ConflictError struct {
	Dataset     string
	NativeID    string
	ExistingID  string
	RequestedID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("mapping conflict for %s:%s: accepted canonical id is %q, requested %q (use overwrite to replace)",
		e.Dataset, e.NativeID, e.ExistingID, e.RequestedID)
}
