package authflow

import "errors"

// Typed error kinds. Lower layers return these so callers can branch on kind;
// the HTTP boundary flattens them to a status plus a uniform message that
// never reveals which sub-case occurred.
var (
	// ErrInvalidCredentials covers unknown email, passwordless federated
	// account and rejected password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAlreadyExists is returned when signup hits an email that already
	// has a password set.
	ErrAlreadyExists = errors.New("user already exists")

	// ErrUnauthorized is returned when a refresh is rejected: session
	// missing, expired, owned by another user, or hash mismatch.
	ErrUnauthorized = errors.New("invalid or expired refresh token")

	// ErrUserNotFound is returned when a session's owning user record has
	// been deleted since issuance.
	ErrUserNotFound = errors.New("user not found")
)
