// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates optimistic concurrency failure (base version mismatch).
	ErrVersionConflict = errors.New("version conflict")

	// ErrUnauthorized indicates a failed password check.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAuthRequired indicates a password-protected note was accessed without a valid session.
	ErrAuthRequired = errors.New("auth required")

	// ErrInvalidArgument indicates a malformed request value (e.g., unknown mode).
	ErrInvalidArgument = errors.New("invalid argument")
)
