package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across the service.
type ErrorCode string

// Request and transport error codes
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrInvalidCredential  ErrorCode = "INVALID_CREDENTIAL"
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Provider error codes
const (
	ErrProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrProviderError       ErrorCode = "PROVIDER_ERROR"
	ErrEmptyResult         ErrorCode = "EMPTY_RESULT"
	ErrEmptyResponse       ErrorCode = "EMPTY_RESPONSE"
)

// Vector error codes
const (
	ErrDimensionMismatch ErrorCode = "DIMENSION_MISMATCH"
	ErrZeroVector        ErrorCode = "ZERO_VECTOR"
	ErrInvalidVector     ErrorCode = "INVALID_VECTOR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// NewProviderUnavailable reports a provider that has no usable configuration.
func NewProviderUnavailable(provider, reason string) *Error {
	return NewError(ErrProviderUnavailable, reason).
		WithProvider(provider).
		WithHTTPStatus(http.StatusServiceUnavailable)
}

// NewProviderError wraps a remote failure. 429 and 5xx are retryable.
func NewProviderError(provider string, status int, message string) *Error {
	return NewError(ErrProviderError, message).
		WithProvider(provider).
		WithHTTPStatus(status).
		WithRetryable(status == http.StatusTooManyRequests || status >= 500)
}

// AsError finds the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code anywhere in its chain.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
