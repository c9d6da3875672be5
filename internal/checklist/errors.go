package checklist

import "errors"

// Domain errors for the checklist package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, checklist.ErrCheckAborted) {
//	    // the pass was cancelled, not failed
//	}
var (
	// ErrCheckAborted is returned when the abort flag interrupts a pass.
	// It signals cancellation, not failure.
	ErrCheckAborted = errors.New("checklist: aborted")

	// ErrCheckExecution wraps an unexpected error raised by a check handler.
	ErrCheckExecution = errors.New("checklist: check execution failed")

	// ErrResponseExecution wraps an error raised by a response handler.
	ErrResponseExecution = errors.New("checklist: response execution failed")

	// ErrHandlerNotFound is returned for a kind with no registered handler.
	ErrHandlerNotFound = errors.New("checklist: handler not found")

	// ErrItemNotFound is returned when a monitored item name does not exist.
	ErrItemNotFound = errors.New("checklist: item not found")

	// ErrItemExists is returned when creating an item whose name is taken.
	ErrItemExists = errors.New("checklist: item already exists")

	// ErrInvalidItem is returned when an item definition fails validation.
	ErrInvalidItem = errors.New("checklist: invalid item")

	// ErrInvalidParams is returned when check or response params cannot be decoded.
	ErrInvalidParams = errors.New("checklist: invalid params")

	// ErrInvalidStatus is returned when parsing an unknown status name.
	ErrInvalidStatus = errors.New("checklist: invalid status")
)
