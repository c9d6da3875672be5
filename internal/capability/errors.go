package capability

import "errors"

var (
	// ErrNotFound is returned by a Lookup that cannot resolve a name.
	ErrNotFound = errors.New("capability: not found")

	// ErrWrongType is returned when a resolved value does not implement the
	// interface its name promises.
	ErrWrongType = errors.New("capability: wrong type")

	// ErrNoReading is returned by a weather station with no value for a quantity.
	ErrNoReading = errors.New("capability: no reading")
)
