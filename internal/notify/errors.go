package notify

import "errors"

var (
	// ErrUnknownQuestion is returned when an answer matches no pending question.
	ErrUnknownQuestion = errors.New("notify: no such pending question")

	// ErrEmptyAnswer is returned for a blank answer.
	ErrEmptyAnswer = errors.New("notify: empty answer")
)
