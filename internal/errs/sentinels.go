// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service/session layers.
var (
	// ErrNotFound indicates the requested entity does not exist. For a whole-store
	// load it means the owner has no remote data yet: a valid empty state.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a unique constraint violation (duplicate key on insert).
	ErrConflict = errors.New("already exists")

	// ErrPermissionDenied indicates the backend rejected the operation on its
	// per-owner access check, typically because of an auth-state race (a logout
	// in flight). Never retried automatically.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUnavailable indicates the backend could not be reached. Safe to retry
	// manually.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrValidation indicates malformed input; the offending record is dropped.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrNoIdentity indicates the current owner could not be resolved. Fatal to
	// the whole save/load attempt.
	ErrNoIdentity = errors.New("no identity")
)
