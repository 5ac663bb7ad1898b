// Package apperror defines the error taxonomy shared by the transcription
// services and maps each kind onto an HTTP status and response code.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping.
type Kind string

const (
	KindAuthentication Kind = "AUTHENTICATION"
	KindValidation     Kind = "VALIDATION"
	KindNotFound       Kind = "NOT_FOUND"
	KindUpstream       Kind = "UPSTREAM"
	KindTimeout        Kind = "TIMEOUT"
	KindInternal       Kind = "INTERNAL"
)

// Error is the application error carried between services and handlers.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error by kind, so errors.Is(err, apperror.NotFound(""))
// works without comparing messages.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// WithDetail sets a single detail and returns the receiver.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// HTTPStatus returns the status code a handler should respond with.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstream:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Authentication reports a missing or invalid webhook signature.
func Authentication(message string) *Error {
	return newError(KindAuthentication, message, nil)
}

// Validation reports a malformed payload or missing submission metadata.
func Validation(message string) *Error {
	return newError(KindValidation, message, nil)
}

// NotFound reports an unknown correlation id.
func NotFound(message string) *Error {
	return newError(KindNotFound, message, nil)
}

// Upstream reports a provider rejection or failure.
func Upstream(message string, cause error) *Error {
	return newError(KindUpstream, message, cause)
}

// Timeout reports an exhausted time budget.
func Timeout(message string, cause error) *Error {
	return newError(KindTimeout, message, cause)
}

// Internal wraps an unexpected failure.
func Internal(message string, cause error) *Error {
	return newError(KindInternal, message, cause)
}

// As extracts an *Error from err. Anything else is reported as internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("unexpected error", err)
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
