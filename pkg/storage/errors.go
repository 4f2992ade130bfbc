package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a session does not exist or belongs to
	// another owner.
	ErrNotFound = errors.New("session not found")

	// ErrConflict is returned when a session with the given ID already exists.
	ErrConflict = errors.New("session already exists")
)
