package types

import "errors"

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnauthenticated = errors.New("authentication required or invalid credentials")
	ErrForbidden       = errors.New("action forbidden")
	ErrConflict        = errors.New("item already exists or conflict")
	ErrNotFound        = errors.New("requested item not found")
	ErrUnavailable     = errors.New("backing store unavailable")
)

// Bearer token verification failures. The HTTP layer collapses all of them
// into a single 401.
var (
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenInvalidSignature = errors.New("token signature invalid")
	ErrTokenExpired          = errors.New("token expired")
)

// Password reset failures. The HTTP layer collapses all of them into a
// single generic 400.
var (
	ErrResetNotFound = errors.New("no pending reset token")
	ErrResetExpired  = errors.New("reset token expired")
	ErrResetMismatch = errors.New("reset token mismatch")
)
