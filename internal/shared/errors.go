package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDeactivated indicates the account exists but is inactive.
	ErrAccountDeactivated = errors.New("account is deactivated")
	// ErrUnauthenticated indicates a missing or unresolvable bearer credential.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden indicates the principal lacks the required role or permission.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict indicates a unique slug or email collision.
	ErrConflict = errors.New("conflict")
	// ErrUpstreamUnavailable indicates an external dependency could not be reached.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
