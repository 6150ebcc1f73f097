package storage

import "errors"

var (
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("resource already exists")

	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("resource not found")
)
