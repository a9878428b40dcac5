// Package apperr defines the error kinds shared across the service and
// their mapping onto HTTP status codes. Handlers translate any error that
// reaches them through AsKind / HTTPStatus; everything else surfaces as a
// plain 500.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the HTTP boundary.
type Kind int

const (
	BadRequest Kind = iota + 1
	Unauthenticated
	Forbidden
	NotFound
	Conflict
	MisconfiguredService
	SSOUnavailable
	CorruptedSession
	Internal
)

// Error is a classified error. Message is safe to return to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error with a client-visible message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a classified error around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// AsKind extracts the Kind from err, or Internal if it is unclassified.
func AsKind(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// HTTPStatus maps a Kind to its HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case BadRequest:
		return http.StatusBadRequest
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case SSOUnavailable:
		return http.StatusServiceUnavailable
	case MisconfiguredService, CorruptedSession:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
