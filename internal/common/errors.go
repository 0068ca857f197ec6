package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound      = errors.New("resource not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrConfiguration = errors.New("configuration error")
	ErrProvider      = errors.New("ocr provider error")
	ErrParsing       = errors.New("value parsing failed")
	ErrStaleTimeout  = errors.New("job timed out")
	ErrDatabase      = errors.New("database error")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ConfigurationError is raised synchronously, before any provider call.
// Jobs are never started for these.
func ConfigurationError(message string) error {
	return NewAppError("CONFIG_ERROR", message, ErrConfiguration)
}

// ProviderError marks an unrecoverable OCR provider failure (after the
// adapter exhausted its own retries). It becomes a terminal job failure.
func ProviderError(message string, cause error) error {
	if cause == nil {
		return NewAppError("PROVIDER_ERROR", message, ErrProvider)
	}
	return NewAppError("PROVIDER_ERROR", message, fmt.Errorf("%w: %w", ErrProvider, cause))
}

// ParsingError marks a malformed provider payload. It never escalates
// past the adapter on its own; callers decide whether it fails the job.
func ParsingError(message string, cause error) error {
	if cause == nil {
		return NewAppError("PARSING_ERROR", message, ErrParsing)
	}
	return NewAppError("PARSING_ERROR", message, fmt.Errorf("%w: %w", ErrParsing, cause))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
