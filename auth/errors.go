package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying every failure the trust core can produce.
// Typed errors throughout the module report membership in one of these
// classes via errors.Is; ErrorStatus maps a class to its HTTP status.
var (
	// ErrUnauthenticated: credentials were presented and are invalid.
	ErrUnauthenticated = errors.New("auth: invalid credentials")

	// ErrForbidden: credentials are fine, the action is not permitted.
	ErrForbidden = errors.New("auth: access denied")

	// ErrValidation: a malformed request body.
	ErrValidation = errors.New("auth: invalid request")

	// ErrTransient: a dependency is unavailable; the caller should retry.
	ErrTransient = errors.New("auth: dependency unavailable")
)

// ErrorStatus returns the HTTP status code for an error raised anywhere in
// the trust core. Unclassified errors are treated as internal.
func ErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return 401
	case errors.Is(err, ErrForbidden):
		return 403
	case errors.Is(err, ErrValidation):
		return 400
	case errors.Is(err, ErrTransient):
		return 500
	default:
		return 500
	}
}

// AuthenticationError reports that an authentication method recognized its
// credential format but deemed the credentials invalid.
type AuthenticationError struct {
	// Method is the authentication method that rejected the credentials.
	Method string

	// Reason explains the rejection.
	Reason string

	// Cause is the underlying error if any.
	Cause error
}

// Error returns the error message.
func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: method=%q reason=%q", e.Method, e.Reason)
}

// Unwrap returns the cause error for errors.Is/As support.
func (e *AuthenticationError) Unwrap() error {
	return e.Cause
}

// Is reports whether this error matches the target.
func (e *AuthenticationError) Is(target error) bool {
	return target == ErrUnauthenticated
}

// AuthorizationError reports that an authenticated caller is not allowed to
// perform the requested action.
type AuthorizationError struct {
	// Subject is the identity that was denied.
	Subject string

	// Reason explains why access was denied.
	Reason string

	// Cause is the underlying error if any.
	Cause error
}

// Error returns the error message.
func (e *AuthorizationError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("authorization denied: %s", e.Reason)
	}
	return fmt.Sprintf("authorization denied: subject=%q reason=%q", e.Subject, e.Reason)
}

// Unwrap returns the cause error for errors.Is/As support.
func (e *AuthorizationError) Unwrap() error {
	return e.Cause
}

// Is reports whether this error matches the target.
func (e *AuthorizationError) Is(target error) bool {
	return target == ErrForbidden
}

// TransientError reports a dependency failure that aborted the request.
// Silently downgrading authority on a transient failure is a security bug,
// so these always surface as fatal request errors.
type TransientError struct {
	// Op names the failed dependency call.
	Op string

	// Cause is the underlying error.
	Cause error
}

// Error returns the error message.
func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Cause)
}

// Unwrap returns the cause error for errors.Is/As support.
func (e *TransientError) Unwrap() error {
	return e.Cause
}

// Is reports whether this error matches the target.
func (e *TransientError) Is(target error) bool {
	return target == ErrTransient
}
