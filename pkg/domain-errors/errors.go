// Package domainerrors provides coded errors for the custody domain.
//
// Services attach a Code when translating store/sentinel failures or
// rejecting input; the HTTP layer maps codes to status responses via
// ToHTTPStatus. Wrap preserves the cause chain for errors.Is/As.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a category of domain failure.
type Code string

const (
	// CodeInvalidQuantity rejects a non-positive or non-numeric amount
	// before any mutation takes place.
	CodeInvalidQuantity Code = "invalid_quantity"
	// CodeMissingField rejects a draft with a required reference absent.
	CodeMissingField Code = "missing_field"
	// CodeNotFound signals a referenced custodian, record, or profile
	// that does not exist.
	CodeNotFound Code = "not_found"
	// CodeUnauthorized signals the actor's role forbids the mutation.
	CodeUnauthorized Code = "unauthorized"
	// CodeStorageUnavailable signals the backing store was unreachable or
	// a commit failed; the operation left no partial state behind.
	CodeStorageUnavailable Code = "storage_unavailable"
	// CodeInvariantViolation signals a recomputed balance disagreed with
	// the ledger sum. Never expected in correct operation.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeBadRequest covers malformed input outside the taxonomy above.
	CodeBadRequest Code = "bad_request"
	// CodeTimeout signals a transaction aborted on a cancelled context.
	CodeTimeout Code = "timeout"
	// CodeInternal is the fallback for unexpected failures.
	CodeInternal Code = "internal"
)

// Error is a coded domain error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
// A nil cause yields nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.cause
	}
	return false
}

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a domain code to an HTTP response status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidQuantity, CodeMissingField, CodeBadRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
