package auth

import "errors"

// Token verification failures. Callers at the HTTP boundary collapse all three
// into one "invalid session" response.
var (
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpired          = errors.New("token expired")
)

// Session and authorization failures.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password too weak")
	ErrPasswordTooLong    = errors.New("password too long")
	ErrUnauthorized       = errors.New("not authorized")
	ErrUnavailable        = errors.New("store unavailable")
)

// IsTokenError reports whether err is one of the token verification failures.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrMalformedToken) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrExpired)
}
