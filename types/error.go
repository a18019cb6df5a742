package types

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a failure class of the counting pipeline.
type ErrorCode string

// Archive error codes
const (
	ErrArchiveRead  ErrorCode = "ARCHIVE_READ"
	ErrArchiveParse ErrorCode = "ARCHIVE_PARSE"
	ErrNonTextPart  ErrorCode = "NON_TEXT_PART"
)

// Tokenizer error codes
const (
	ErrTokenizerUnavailable ErrorCode = "TOKENIZER_UNAVAILABLE"
	ErrTokenizerError       ErrorCode = "TOKENIZER_ERROR"
)

// ErrInvalidConfig is returned for configuration that fails validation.
const ErrInvalidConfig ErrorCode = "INVALID_CONFIG"

// Error represents a structured error with code, message, and cause.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
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

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// GetErrorCode extracts the error code from an error chain.
// It returns "" when no *Error is found.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code anywhere in its chain.
func IsErrorCode(err error, code ErrorCode) bool {
	return err != nil && GetErrorCode(err) == code
}
