package repository

import "errors"

// Shared repository errors.
var (
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicateEntry means a write violated a unique constraint.
	ErrDuplicateEntry = errors.New("repository: duplicate entry")
)

// Resource-specific aliases kept for readable call sites.
var (
	ErrRoomNotFound       = ErrNotFound
	ErrUserNotFound       = ErrNotFound
	ErrMembershipNotFound = ErrNotFound
)
