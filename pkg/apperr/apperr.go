// Package apperr defines the error model surfaced to callers of the API
// client: a canonical code, the user-facing message, the upstream HTTP status
// when there was one, and the underlying cause for errors.Is/As.
package apperr

import (
	"errors"
	"fmt"
)

// AppError is the canonical error shape returned by the client.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	cause      error
	ec         *ErrorCode
}

// New creates a new AppError from an ErrorCode.
func New(ec *ErrorCode) *AppError {
	if ec == nil {
		ec = ErrorCodeUnexpected
	}
	return &AppError{
		Code:       ec.Code(),
		Message:    ec.Message(),
		HTTPStatus: ec.HTTPStatus(),
		ec:         ec,
	}
}

// FromError returns err as an *AppError, wrapping unknown errors with
// ErrorCodeUnexpected.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return New(ErrorCodeUnexpected).Wrap(err)
}

func (a *AppError) Error() string {
	if a == nil {
		return "<nil>"
	}
	if a.cause != nil {
		return fmt.Sprintf("%s: %v", a.Code, a.cause)
	}
	return a.Message
}

// WithStatus sets/overrides the HTTP status and returns the same AppError for chaining.
func (a *AppError) WithStatus(status int) *AppError {
	if a == nil {
		return New(ErrorCodeUnexpected).WithStatus(status)
	}
	a.HTTPStatus = status
	return a
}

// WithMessage overrides the message and returns the same AppError for chaining.
func (a *AppError) WithMessage(msg string) *AppError {
	if a == nil {
		return New(ErrorCodeUnexpected).WithMessage(msg)
	}
	a.Message = msg
	return a
}

// Wrap sets the underlying cause and returns the same AppError.
func (a *AppError) Wrap(err error) *AppError {
	if a == nil {
		a = New(ErrorCodeUnexpected)
	}
	a.cause = err
	return a
}

// Unwrap returns the underlying cause, allowing errors.Unwrap/Is/As to work.
func (a *AppError) Unwrap() error { return a.cause }

// ErrorCode returns the code the error was built from.
func (a *AppError) ErrorCode() *ErrorCode {
	if a == nil {
		return nil
	}
	return a.ec
}

// CodeOf returns the ErrorCode carried by the first AppError in err's chain,
// or nil.
func CodeOf(err error) *ErrorCode {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.ec
	}
	return nil
}

// Is reports whether err carries the given code.
func Is(err error, ec *ErrorCode) bool {
	got := CodeOf(err)
	return got != nil && ec != nil && got.Code() == ec.Code()
}
