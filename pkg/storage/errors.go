package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a conversation or event does not exist,
	// or belongs to another tenant.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an insert collides with an existing order
	// key in the same conversation. Callers recompute the key and retry.
	ErrConflict = errors.New("order key already taken")

	// ErrAlreadyExists is returned when a conversation or event id is reused.
	ErrAlreadyExists = errors.New("already exists")
)
