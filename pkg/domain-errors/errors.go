// Package domainerrors provides coded errors for the registry's rules layer.
//
// Services return these so transports can translate failures into protocol
// responses without string matching. Stores return pkg/platform/sentinel
// errors instead; services translate at the boundary.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain failure.
type Code string

const (
	// CodeInvalidInput covers malformed input: empty listing name,
	// out-of-range rating score.
	CodeInvalidInput Code = "invalid_input"

	// CodeInsufficientPayment means the declared payment does not cover the
	// registration fee or the listing price.
	CodeInsufficientPayment Code = "insufficient_payment"

	// CodeNotFound means the referenced listing does not exist.
	CodeNotFound Code = "not_found"

	// CodeAlreadyInstalled means an install record already exists for the
	// (listing, caller) pair.
	CodeAlreadyInstalled Code = "already_installed"

	// CodeNotInstalled means the caller tried to rate a listing without a
	// prior install.
	CodeNotInstalled Code = "not_installed"

	// CodeUnauthorized means a non-administrator attempted an
	// administrative operation, or the caller identity is missing.
	CodeUnauthorized Code = "unauthorized"

	// CodeTransferFailed means the payment channel rejected a payout; the
	// enclosing operation was aborted with no state mutation.
	CodeTransferFailed Code = "transfer_failed"

	// CodeInternal covers unexpected infrastructure failures.
	CodeInternal Code = "internal"
)

// DomainError carries a code, a caller-safe message, and an optional cause.
type DomainError struct {
	Code    Code
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// New creates a DomainError with the given code and message.
func New(code Code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// Wrap annotates err with a code and message while preserving the cause for
// errors.Is / errors.As chains.
func Wrap(err error, code Code, message string) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or anything it wraps) is a DomainError with
// the given code.
func HasCode(err error, code Code) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias for HasCode kept for call-site readability.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a domain code to an HTTP status for the transport layer.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeInsufficientPayment:
		return http.StatusPaymentRequired
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyInstalled:
		return http.StatusConflict
	case CodeNotInstalled:
		return http.StatusForbidden
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeTransferFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
