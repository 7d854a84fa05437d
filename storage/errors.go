package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when a submission is not found.
	ErrNotFound = errors.New("submission not found")
)
