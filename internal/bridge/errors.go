package bridge

import "errors"

var (
	// ErrTimeout is returned when a bridge does not acknowledge a call in time.
	ErrTimeout = errors.New("bridge: call timed out")

	// ErrRejected is returned when a bridge acknowledges a call as failed.
	ErrRejected = errors.New("bridge: call rejected")

	// ErrClosed is returned for calls pending or made after Close.
	ErrClosed = errors.New("bridge: closed")

	// ErrInvalidConfig is returned by New for an unusable configuration.
	ErrInvalidConfig = errors.New("bridge: invalid configuration")
)
