// Package apierrors defines the closed set of error codes every component
// boundary maps into before a response leaves the service facade, and the
// HTTP status each one carries.
package apierrors

import (
	"errors"
	"net/http"
)

type Code string

const (
	CodeNotFound           Code = "not_found"
	CodePermissionDenied   Code = "permission_denied"
	CodeAlreadyExists      Code = "already_exists"
	CodeInvalidArgument    Code = "invalid_argument"
	CodeFailedPrecondition Code = "failed_precondition"
	CodeResourceExhausted  Code = "resource_exhausted"
	CodeUnauthenticated    Code = "unauthenticated"
	CodeInternal           Code = "internal"
)

var httpStatus = map[Code]int{
	CodeNotFound:           http.StatusNotFound,
	CodePermissionDenied:   http.StatusForbidden,
	CodeAlreadyExists:      http.StatusConflict,
	CodeInvalidArgument:    http.StatusBadRequest,
	CodeFailedPrecondition: http.StatusPreconditionFailed,
	CodeResourceExhausted:  http.StatusTooManyRequests,
	CodeUnauthenticated:    http.StatusUnauthorized,
	CodeInternal:           http.StatusInternalServerError,
}

// Error is the typed error every component boundary converts sentinel
// errors into. The message is safe to return to a client.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// HTTPStatus returns the status code the given apierror code maps to,
// defaulting to 500 for an unrecognized code.
func HTTPStatus(c Code) int {
	if s, ok := httpStatus[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// As extracts an *Error from err, returning ok=false if err does not wrap one.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
