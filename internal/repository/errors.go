package repository

import "errors"

// Common storage errors. Implementations map driver-specific failures onto
// these so the service layer never inspects raw database errors.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicateEntry indicates a write violated a unique constraint.
	ErrDuplicateEntry = errors.New("repository: duplicate entry")
)

// Resource-specific aliases.
var (
	ErrUserNotFound = ErrNotFound
	ErrCopyNotFound = ErrNotFound
)
