package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")
)

// Throttling and login guard errors
var (
	// ErrRateLimited is soft; the caller may retry after the reported delay.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrBlocked is returned for heuristically flagged clients.
	ErrBlocked = errors.New("request blocked")

	// ErrInvalidCredentials is terminal for the attempt and counts toward lockout.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountLocked is terminal until the lockout expires.
	ErrAccountLocked = errors.New("account is temporarily locked")

	// ErrTwoFactorRequired means a challenge was issued and a follow-up request is expected.
	ErrTwoFactorRequired = errors.New("two-factor verification required")

	// ErrTwoFactorInvalid covers wrong codes and verification without an active challenge.
	ErrTwoFactorInvalid = errors.New("invalid two-factor code")

	// ErrTwoFactorExpired is returned when the challenge TTL has passed.
	ErrTwoFactorExpired = errors.New("two-factor code expired")

	// ErrStoreUnavailable is an infrastructure fault in a counter or guard store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrSessionRevoked is returned for tokens whose session has been revoked or expired.
	ErrSessionRevoked = errors.New("session revoked")
)
