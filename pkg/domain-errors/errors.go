// Package domainerrors defines the coded errors shared across tollgate
// services. Handlers map codes to HTTP statuses; services wrap collaborator
// failures so callers can distinguish recoverable conditions from internal
// faults.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure independent of transport.
type Code string

const (
	// CodeConfiguration marks malformed publisher settings (unparseable
	// price, bad chain id). Fatal to the evaluation that hit it; never
	// silently coerced to a default.
	CodeConfiguration Code = "configuration_error"

	// CodeVerificationFailed marks a payment proof the ledger could not
	// confirm. Recoverable: the caller may retry with the same or a new
	// proof.
	CodeVerificationFailed Code = "verification_failed"

	// CodeUnexpectedState marks an internal-consistency fault in the
	// request flow (e.g. a confirmed payment that still evaluates to
	// payment-required). Surfaced, never retried.
	CodeUnexpectedState Code = "unexpected_state"

	// CodeCollaboratorUnavailable wraps failures from external
	// collaborators (stores, verifiers). Retry policy belongs to the
	// caller.
	CodeCollaboratorUnavailable Code = "collaborator_unavailable"

	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeNotFound     Code = "not_found"
	CodeInternal     Code = "internal_error"
)

// Error carries a code plus a human-readable description and optionally wraps
// an underlying cause.
type Error struct {
	Code        Code
	Description string
	cause       error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Description, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New constructs a coded error.
func New(code Code, description string) *Error {
	return &Error{Code: code, Description: description}
}

// Wrap constructs a coded error around an underlying cause.
func Wrap(code Code, description string, cause error) *Error {
	return &Error{Code: code, Description: description, cause: cause}
}

// CodeOf extracts the code from err, or CodeInternal when err carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
