package process

import "errors"

var (
	// ErrScriptNotFound is returned when the script does not exist.
	ErrScriptNotFound = errors.New("process: script not found")

	// ErrNotAllowed is returned when the script lies outside the configured directory.
	ErrNotAllowed = errors.New("process: script outside allowed directory")

	// ErrNotExecutable is returned when the script is a directory or lacks the execute bit.
	ErrNotExecutable = errors.New("process: script not executable")

	// ErrTimeout is returned when the script ran longer than its timeout and was killed.
	ErrTimeout = errors.New("process: script timed out")

	// ErrExit is returned when the script exited with a non-zero status.
	ErrExit = errors.New("process: script exited with non-zero status")
)
