package store

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a uniqueness constraint would be violated or
	// an optimistic update could not be applied within the retry budget.
	ErrConflict = errors.New("store: conflict")
	// ErrInvalidCursor is returned by ListUsers for a cursor it did not issue.
	ErrInvalidCursor = errors.New("store: invalid cursor")
)
