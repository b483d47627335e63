package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Authentication & Authorization
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrCodeSessionExpired     ErrorCode = "SESSION_EXPIRED"

	// Password reset tokens
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired ErrorCode = "TOKEN_EXPIRED"

	// Validation
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"

	// Resource
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// Rate Limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal
	ErrCodeInternal  ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase  ErrorCode = "DATABASE_ERROR"
	ErrCodeStorage   ErrorCode = "STORAGE_ERROR"
	ErrCodeIntegrity ErrorCode = "INTEGRITY_ERROR"
)

// Redirect targets carried in error details.
const (
	RedirectLogin          = "/login"
	RedirectForgotPassword = "/forgot-password"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code     ErrorCode `json:"code"`
	Message  string    `json:"message"`
	Details  any       `json:"details,omitempty"`
	Redirect string    `json:"redirect,omitempty"`
	cause    error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// WithRedirect points the client at the path it should navigate to.
func (e *AppError) WithRedirect(path string) *AppError {
	e.Redirect = path
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func InvalidCredentials() *AppError {
	return New(ErrCodeInvalidCredentials, "Invalid credentials.")
}

func Forbidden(message string) *AppError {
	return New(ErrCodeForbidden, message)
}

func SessionExpired() *AppError {
	return New(ErrCodeSessionExpired, "Your session expired due to inactivity. Please log in again.").
		WithRedirect(RedirectLogin)
}

func InvalidToken() *AppError {
	return New(ErrCodeInvalidToken, "Invalid or expired reset link.").
		WithRedirect(RedirectForgotPassword)
}

func TokenExpired() *AppError {
	return New(ErrCodeTokenExpired, "This reset link has expired or already been used.").
		WithRedirect(RedirectForgotPassword)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found.", resource))
}

func AlreadyExists(message string) *AppError {
	return New(ErrCodeAlreadyExists, message)
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

// Validation reports every violated rule at once.
func Validation(violations []string) *AppError {
	return New(ErrCodeValidation, "Validation failed").WithDetails(violations)
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Too many requests. Please try again later.")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

func Storage(cause error) *AppError {
	return Wrap(ErrCodeStorage, "Storage error", cause)
}

func Integrity(cause error) *AppError {
	return Wrap(ErrCodeIntegrity, "Stored data could not be read", cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}
