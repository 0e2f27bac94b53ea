package repository

import "errors"

var (
	// ErrNotFound is returned when a document or comment does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotPending is returned when a suggestion resolution targets a
	// suggestion that already reached a terminal state, or a non-suggestion.
	ErrNotPending = errors.New("suggestion is not pending")
)
