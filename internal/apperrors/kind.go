package apperrors

import (
	"errors"
	"net/http"
)

// Kind classifies an operation failure. Every mutating operation returns an
// error carrying exactly one Kind; handlers map kinds to HTTP statuses and
// stable code strings so the UI can render a specific message.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindInvariantViolation
	KindBadRequest
	KindConflict
)

// Error is a sentinel-friendly error with a Kind attached. Packages declare
// their failure modes as vars built with New and compare with errors.Is.
type Error struct {
	kind Kind
	msg  string
}

// New creates an Error with the given kind and message.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Kind returns the failure classification.
func (e *Error) Kind() Kind { return e.kind }

// KindOf extracts the Kind from an error chain. Errors that do not carry a
// Kind classify as KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.kind
	}
	return KindInternal
}

// Code returns the stable wire code for a kind.
func (k Kind) Code() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindInvariantViolation:
		return "invariant_violation"
	case KindBadRequest:
		return "bad_request"
	case KindConflict:
		return "conflict"
	default:
		return "internal_error"
	}
}

// HTTPStatus returns the HTTP status a kind maps to.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindInvariantViolation, KindConflict:
		return http.StatusConflict
	case KindBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
