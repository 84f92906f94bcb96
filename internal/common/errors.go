// Package common defines shared constants and sentinel errors used across
// client and server layers of FormVault. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// ErrorValidation covers malformed input rejected before any storage
	// access: bad idempotency keys, malformed envelope shapes.
	ErrorValidation = errors.New("validation error")

	// ErrorStorageUnavailable marks a degraded backing store. Read paths
	// for rate limiting, lockout and revocation fail open on it; write
	// paths for idempotency and envelope persistence fail closed.
	ErrorStorageUnavailable = errors.New("storage unavailable")

	// Throttling errors. Both carry retry timing at the service layer.
	ErrorRateLimited   = errors.New("rate limit exceeded")
	ErrorAccountLocked = errors.New("account locked")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired = errors.New("token expired")
)
