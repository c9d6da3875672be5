package responses

import "errors"

var (
	// ErrOpenNotAllowed is returned when the supervisor refuses an open.
	ErrOpenNotAllowed = errors.New("responses: open not allowed")

	// ErrCapabilityMissing is returned when a required capability was not bound.
	ErrCapabilityMissing = errors.New("responses: capability missing")

	// ErrUnknownMode is returned for a mode the response kind does not define.
	ErrUnknownMode = errors.New("responses: unknown mode")
)
