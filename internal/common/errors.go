// Package common defines shared constants and sentinel errors used across
// client and server layers of Secret Vault. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrInternal         = errors.New("internal error")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrPermissionDenied = errors.New("permission denied")
	ErrVersionConflict  = errors.New("version conflict")

	// Validation errors (malformed identifiers, bad metadata, bad PEM).
	ErrValidation = errors.New("validation error")

	// ErrCrypto covers every encryption/decryption primitive failure. The
	// message is deliberately generic: which step failed must not be
	// distinguishable by the caller.
	ErrCrypto = errors.New("cryptographic operation failed")

	// ErrLastAdministrator rejects a revoke that would leave a secret with
	// zero approved permissions.
	ErrLastAdministrator = errors.New("cannot remove last approved permission")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
