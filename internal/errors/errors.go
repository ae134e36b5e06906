package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError represents a structured analysis error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError carrying the same code, so the exported
// sentinels below work with errors.Is regardless of message.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message
func Newf(code, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an error with additional context, keeping the code of the
// innermost AppError.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   err,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetCode returns the error code if it's an AppError, otherwise returns "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Error codes of the analysis taxonomy
const (
	CodeInvalidSchema       = "INVALID_SCHEMA"
	CodeTimeAlignment       = "TIME_ALIGNMENT"
	CodeInsufficientData    = "INSUFFICIENT_DATA"
	CodeNumericalDegeneracy = "NUMERICAL_DEGENERACY"
	CodeConfigInvalid       = "CONFIG_INVALID"
	CodeIncomplete          = "INCOMPLETE"
	CodeInternalError       = "INTERNAL_ERROR"
)

// Sentinels for errors.Is checks.
var (
	ErrInvalidSchema       = New(CodeInvalidSchema, "invalid schema")
	ErrTimeAlignment       = New(CodeTimeAlignment, "time alignment failed")
	ErrInsufficientData    = New(CodeInsufficientData, "insufficient data")
	ErrNumericalDegeneracy = New(CodeNumericalDegeneracy, "numerical degeneracy")
	ErrConfigInvalid       = New(CodeConfigInvalid, "invalid configuration")
	ErrIncomplete          = New(CodeIncomplete, "analysis incomplete")
)

// Common error constructors
func InvalidSchema(message string) *AppError {
	return New(CodeInvalidSchema, message)
}

func TimeAlignment(message string) *AppError {
	return New(CodeTimeAlignment, message)
}

func InsufficientData(message string) *AppError {
	return New(CodeInsufficientData, message)
}

func NumericalDegeneracy(message string) *AppError {
	return New(CodeNumericalDegeneracy, message)
}

func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

// Incomplete marks work abandoned because its context ended. stage names
// what was interrupted ("dataset", "analysis", "resampling").
func Incomplete(stage string, cause error) *AppError {
	return &AppError{
		Code:    CodeIncomplete,
		Message: stage + " interrupted",
		Cause:   cause,
	}
}
