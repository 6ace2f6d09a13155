package errors

import (
	stderrors "errors"
	"fmt"
)

// PropError is the structured error type for propindex.
// It provides rich context for error handling, logging, and user presentation.
type PropError struct {
	// Code is the unique error code (e.g., "ERR_207_INDEX_LOCKED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Validation, Internal).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// ErrInterrupted is matched (via errors.Is) by every error carrying ErrCodeInterrupted.
var ErrInterrupted = &PropError{Code: ErrCodeInterrupted, Message: "interrupted"}

// Error implements the error interface.
func (e *PropError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *PropError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a PropError with the same code.
func (e *PropError) Is(target error) bool {
	if t, ok := target.(*PropError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *PropError) WithDetail(key, value string) *PropError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *PropError) WithSuggestion(suggestion string) *PropError {
	e.Suggestion = suggestion
	return e
}

// New creates a new PropError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *PropError {
	return &PropError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a PropError from an existing error.
// The error's message becomes the PropError message.
func Wrap(code string, err error) *PropError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Interrupted wraps a context error as a cancellation condition.
func Interrupted(message string, cause error) *PropError {
	return New(ErrCodeInterrupted, message, cause)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *PropError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *PropError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *PropError {
	return New(ErrCodeInternal, message, cause)
}

// as finds the first PropError in err's chain.
func as(err error) (*PropError, bool) {
	var pe *PropError
	if stderrors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if pe, ok := as(err); ok {
		return pe.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if pe, ok := as(err); ok {
		return pe.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from the first PropError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	if pe, ok := as(err); ok {
		return pe.Code
	}
	return ""
}

// GetCategory extracts the category from the first PropError in the chain.
func GetCategory(err error) Category {
	if pe, ok := as(err); ok {
		return pe.Category
	}
	return ""
}
