package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode is the stable, machine readable identifier sent to clients
type ErrorCode string

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Status  int       `json:"-"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode lets the error middleware pick the HTTP status
func (e *AppError) StatusCode() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// Is matches on code so callers can compare against the sentinel values below
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Common error codes
const (
	CodeNotFound              ErrorCode = "NOT_FOUND"
	CodeBadRequest            ErrorCode = "BAD_REQUEST"
	CodeValidation            ErrorCode = "VALIDATION"
	CodeUnauthorized          ErrorCode = "UNAUTHORIZED"
	CodeForbidden             ErrorCode = "FORBIDDEN"
	CodeConflict              ErrorCode = "CONFLICT"
	CodeInvalidTransition     ErrorCode = "INVALID_TRANSITION"
	CodeInvalidCredentials    ErrorCode = "INVALID_CREDENTIALS"
	CodeEmailNotConfirmed     ErrorCode = "EMAIL_NOT_CONFIRMED"
	CodeSpecialistNotApproved ErrorCode = "SPECIALIST_NOT_APPROVED"
	CodeRateLimited           ErrorCode = "RATE_LIMITED"
	CodeInternal              ErrorCode = "INTERNAL"
)

// Sentinels for errors.Is checks
var (
	ErrNotFound              = &AppError{Code: CodeNotFound}
	ErrConflict              = &AppError{Code: CodeConflict}
	ErrForbidden             = &AppError{Code: CodeForbidden}
	ErrInvalidTransition     = &AppError{Code: CodeInvalidTransition}
	ErrValidation            = &AppError{Code: CodeValidation}
	ErrUnauthorized          = &AppError{Code: CodeUnauthorized}
	ErrInvalidCredentials    = &AppError{Code: CodeInvalidCredentials}
	ErrEmailNotConfirmed     = &AppError{Code: CodeEmailNotConfirmed}
	ErrSpecialistNotApproved = &AppError{Code: CodeSpecialistNotApproved}
)

// Error constructors
func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

func Validation(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
		Status:  http.StatusUnprocessableEntity,
	}
}

func Validationf(format string, args ...interface{}) *AppError {
	return Validation(fmt.Sprintf(format, args...))
}

func Unauthorized(message string, err error) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

func Forbidden(message string) *AppError {
	if message == "" {
		message = "forbidden"
	}
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
		Status:  http.StatusForbidden,
	}
}

func Conflict(message string, err error) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
		Status:  http.StatusConflict,
		Err:     err,
	}
}

func InvalidTransition(from, to string) *AppError {
	return &AppError{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("cannot change turno from %s to %s", from, to),
		Status:  http.StatusConflict,
	}
}

func InvalidCredentials() *AppError {
	return &AppError{
		Code:    CodeInvalidCredentials,
		Message: "invalid email or password",
		Status:  http.StatusUnauthorized,
	}
}

func EmailNotConfirmed() *AppError {
	return &AppError{
		Code:    CodeEmailNotConfirmed,
		Message: "email address has not been confirmed",
		Status:  http.StatusForbidden,
	}
}

func SpecialistNotApproved() *AppError {
	return &AppError{
		Code:    CodeSpecialistNotApproved,
		Message: "specialist account is pending administrator approval",
		Status:  http.StatusForbidden,
	}
}

func RateLimited() *AppError {
	return &AppError{
		Code:    CodeRateLimited,
		Message: "too many requests, try again later",
		Status:  http.StatusTooManyRequests,
	}
}

func Internal(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "internal server error",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// As extracts an *AppError from the chain, wrapping anything else as internal
func As(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// IsCode reports whether err carries the given code anywhere in its chain
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
