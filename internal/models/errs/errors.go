package errs

import (
	"errors"
	"fmt"
)

// Common sentinel errors.
var (
	// Entity does not exist.
	ErrNotFound = errors.New("not found")
	// Write violates a uniqueness constraint.
	ErrDataConflict = errors.New("data conflict")
	// Missing, invalid or expired credential.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// Valid credential, insufficient rights.
	ErrForbidden = errors.New("forbidden")
	// Requested order status change is not legal.
	ErrInvalidTransition = errors.New("invalid status transition")
	// Malformed input.
	ErrInvalidPayload = errors.New("invalid payload")
	// Unsupported request content type.
	ErrInvalidContentType = errors.New("invalid content type")
	// Required request body parameter is absent.
	ErrRequiredBodyParam = errors.New("required body parameter missing")
	// A dependency (store, queue) could not serve the request.
	ErrUnavailable = errors.New("dependency unavailable")
)

// Type just for marshalling purpose.
// Should only be used immediately before marshalling.
type JSON struct {
	Error string `json:"error"`
}

// ValidationError carries the offending field along with the reason.
// It unwraps to ErrInvalidPayload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidPayload, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidPayload
}
