package repository

import "errors"

var (
	// ErrNotFound indicates an entity was not located.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicate indicates a unique index rejected an insert.
	ErrDuplicate = errors.New("repository: duplicate key")
)
