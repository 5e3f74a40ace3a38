package domain

import "errors"

// Common errors
var (
	ErrNotFound  = errors.New("record not found")
	ErrForbidden = errors.New("access forbidden: super admin required")

	// ErrSessionMissing is the benign "no active session" outcome of a
	// provider sign-out. Callers clear local state and move on.
	ErrSessionMissing = errors.New("auth session missing")

	// ErrNoIdentity is returned by session actions that need a signed-in user.
	ErrNoIdentity = errors.New("no identity present")
)
