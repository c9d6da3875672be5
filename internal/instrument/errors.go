package instrument

import "errors"

// Domain errors for the instrument package.
//
// Failed writes are always surfaced, never logged and dropped:
//
//	if errors.Is(err, instrument.ErrStatusUpdate) {
//	    // the flag or key change did not reach the database
//	}
var (
	// ErrStatusUpdate is returned when a flag or key change could not be committed.
	ErrStatusUpdate = errors.New("instrument: status update failed")

	// ErrLocked is returned when a flag write is refused because keys are still active.
	// It is always wrapped together with ErrStatusUpdate.
	ErrLocked = errors.New("instrument: locked by active key")

	// ErrKeyRequired is returned when locking without a key.
	ErrKeyRequired = errors.New("instrument: key required")

	// ErrInvalidFlag is returned for an unknown flag name.
	ErrInvalidFlag = errors.New("instrument: invalid flag")

	// ErrInvalidName is returned for an empty instrument name.
	ErrInvalidName = errors.New("instrument: invalid name")

	// ErrNotFound is returned when an instrument has no status row.
	ErrNotFound = errors.New("instrument: not found")
)
