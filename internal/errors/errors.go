package errors

import (
	"errors"
	"fmt"
)

// AskDocError is the structured error type for AskDoc.
// It provides context for error handling, logging, and API responses.
type AskDocError struct {
	// Code is the unique error code (e.g., "ERR_301_EMBED_FAILED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Backend, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Stage is the pipeline stage that failed, when applicable.
	Stage Stage

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *AskDocError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *AskDocError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with AskDocError.
func (e *AskDocError) Is(target error) bool {
	if t, ok := target.(*AskDocError); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a new AskDocError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *AskDocError {
	return &AskDocError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an AskDocError from an existing error.
// The error's message becomes the AskDocError message.
func Wrap(code string, err error) *AskDocError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// StageError wraps a backend failure with the pipeline stage it happened in.
// The error code is derived from the stage.
func StageError(stage Stage, err error) *AskDocError {
	if err == nil {
		return nil
	}
	code, ok := stageCodes[stage]
	if !ok {
		code = ErrCodeInternal
	}
	e := New(code, fmt.Sprintf("%s stage failed: %v", stage, err), err)
	e.Stage = stage
	return e
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *AskDocError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *AskDocError {
	return New(ErrCodeInvalidInput, message, cause)
}

// ParseError creates a document parsing error.
func ParseError(message string, cause error) *AskDocError {
	return New(ErrCodeParseFailed, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *AskDocError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var ae *AskDocError
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return false
}

// GetCode extracts the error code from an error chain.
// Returns empty string if no AskDocError is present.
func GetCode(err error) string {
	var ae *AskDocError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// GetStage extracts the failing pipeline stage from an error chain.
// Returns empty string if no stage is recorded.
func GetStage(err error) Stage {
	var ae *AskDocError
	if errors.As(err, &ae) {
		return ae.Stage
	}
	return ""
}

// GetCategory extracts the category from an error chain.
func GetCategory(err error) Category {
	var ae *AskDocError
	if errors.As(err, &ae) {
		return ae.Category
	}
	return ""
}
