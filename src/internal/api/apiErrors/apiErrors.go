package apiErrors

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	Validation    ErrorCode = "VALIDATION_ERROR"
	Forbidden     ErrorCode = "FORBIDDEN"
	InvalidState  ErrorCode = "INVALID_STATE"
	NotFound      ErrorCode = "NOT_FOUND"
	Conflict      ErrorCode = "CONFLICT"
	Unauthorized  ErrorCode = "UNAUTHORIZED"
	InternalError ErrorCode = "INTERNAL_ERROR"
)

type APIError struct {
	Code    ErrorCode
	Message string
}

func (e APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Is matches on Code only, so errors.Is(err, ErrInvalidState) holds for any
// message.
func (e APIError) Is(target error) bool {
	var t APIError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrValidation   = APIError{Code: Validation}
	ErrForbidden    = APIError{Code: Forbidden}
	ErrInvalidState = APIError{Code: InvalidState}
	ErrNotFound     = APIError{Code: NotFound}
	ErrConflict     = APIError{Code: Conflict}
)

func New(code ErrorCode, message string) APIError {
	return APIError{Code: code, Message: message}
}

// CodeOf returns the code carried by err, or InternalError.
func CodeOf(err error) ErrorCode {
	var e APIError
	if errors.As(err, &e) {
		return e.Code
	}
	return InternalError
}
