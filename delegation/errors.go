package delegation

import (
	"fmt"

	"github.com/jonwraymond/authcore/auth"
)

// ValidationError reports a malformed mint request body. Maps to HTTP 400.
type ValidationError struct {
	// Reason explains what is wrong with the request.
	Reason string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	return e.Reason
}

// Is reports whether this error matches the target.
func (e *ValidationError) Is(target error) bool {
	return target == auth.ErrValidation
}

// BadTokenError reports a delegation token that is malformed, forged, or
// expired. Maps to HTTP 403.
type BadTokenError struct {
	// Reason explains the rejection.
	Reason string

	// Cause is the underlying error if any.
	Cause error
}

// Error returns the error message.
func (e *BadTokenError) Error() string {
	return fmt.Sprintf("bad delegation token: %s", e.Reason)
}

// Unwrap returns the cause error for errors.Is/As support.
func (e *BadTokenError) Unwrap() error {
	return e.Cause
}

// Is reports whether this error matches the target.
func (e *BadTokenError) Is(target error) bool {
	return target == auth.ErrForbidden
}

// ErrTokenTooLarge indicates a sealed token that exceeds the wire size limit.
// It is a bad-request-class error: the caller asked for a token that cannot
// be represented.
var ErrTokenTooLarge = fmt.Errorf("delegation: sealed token exceeds the wire size limit: %w", auth.ErrValidation)
