package supervisor

import "errors"

var (
	// ErrInvalidTransition is returned by Request for a target it does not accept.
	ErrInvalidTransition = errors.New("supervisor: invalid state transition")

	// ErrItemActive is returned when /run names an active item; active items
	// run on the regular passes.
	ErrItemActive = errors.New("supervisor: item is active")

	// ErrUnknownCommand is returned for an operator command that does not exist.
	ErrUnknownCommand = errors.New("supervisor: unknown command")

	// ErrUsage is returned for an operator command with the wrong arguments.
	ErrUsage = errors.New("usage")
)
