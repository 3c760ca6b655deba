package errors

import (
	stderrors "errors"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeValidation   ErrorType = "VALIDATION"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeUpstream     ErrorType = "UPSTREAM"
	ErrorTypeParse        ErrorType = "PARSE"
	ErrorTypeInternal     ErrorType = "INTERNAL"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"
)

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details any       `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

func NotFound(message string) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

func ValidationError(message string, details any) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Message: message,
		Code:    http.StatusBadRequest,
		Details: details,
	}
}

// Conflict marks a rejected non-fast-forward ref update. The client is
// expected to refetch and retry; nothing has been written to the branch.
func Conflict(message string) *Error {
	return &Error{
		Type:    ErrorTypeConflict,
		Message: message,
		Code:    http.StatusConflict,
	}
}

// Upstream wraps an unexpected response from the GitHub API. Details
// carries the upstream status and body so operators can see what broke.
func Upstream(message string, details any) *Error {
	return &Error{
		Type:    ErrorTypeUpstream,
		Message: message,
		Code:    http.StatusBadGateway,
		Details: details,
	}
}

// ParseError marks remote content that exists but is not valid JSON.
func ParseError(message string, details any) *Error {
	return &Error{
		Type:    ErrorTypeParse,
		Message: message,
		Code:    http.StatusBadGateway,
		Details: details,
	}
}

func Internal(message string) *Error {
	return &Error{
		Type:    ErrorTypeInternal,
		Message: message,
		Code:    http.StatusInternalServerError,
	}
}

func Unauthorized(message string) *Error {
	return &Error{
		Type:    ErrorTypeUnauthorized,
		Message: message,
		Code:    http.StatusUnauthorized,
	}
}

func Forbidden(message string) *Error {
	return &Error{
		Type:    ErrorTypeForbidden,
		Message: message,
		Code:    http.StatusForbidden,
	}
}

// IsType reports whether err is (or wraps) an *Error of the given type.
func IsType(err error, t ErrorType) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// From normalizes any error into an *Error, defaulting to Internal so
// handlers never leak raw error strings with a 200-series code.
func From(err error) *Error {
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return Internal(err.Error())
}
