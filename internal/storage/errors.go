package storage

import "errors"

// Errors shared by every backend. Backends wrap driver errors into these so callers
// can branch with errors.Is regardless of the store in use.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when an append-only record (quote, submission) is
	// inserted twice under the same ID.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned for records that fail validation before reaching the backend.
	ErrInvalidInput = errors.New("invalid input")
)
