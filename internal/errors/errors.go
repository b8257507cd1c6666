// Package errors provides the application error taxonomy for the
// hfpanel pipeline.
//
// Three error classes matter to callers:
//
//   - ErrTypeConfig: a misconfigured pipeline (missing field, duplicate
//     panel key, degenerate fixed effect). Aborts the run before any data
//     is mutated.
//   - ErrTypeData: an unreadable or structurally broken input file.
//   - ErrTypeEstimation: a failure reported by the estimation backend for
//     one specification. Never aborts the remaining specifications.
//
// Cell-level conditions (divide by zero, log of a non-positive value, an
// unmatched join) are NOT errors anywhere in this codebase; they resolve
// to missing values inside internal/dataset.
package errors

import (
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrTypeConfig     ErrorType = "CONFIG"
	ErrTypeData       ErrorType = "DATA"
	ErrTypeEstimation ErrorType = "ESTIMATION"
	ErrTypeStorage    ErrorType = "STORAGE"
	ErrTypeValidation ErrorType = "VALIDATION"
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Helper functions for common error types

// NewConfigError creates a configuration error. Configuration errors abort
// the whole pipeline run before any rows are touched.
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// NewDataError creates an input-data error
func NewDataError(message string, cause error) *AppError {
	return NewAppError(ErrTypeData, message, cause)
}

// NewEstimationError creates an estimation error tagged with the
// specification that produced it.
func NewEstimationError(spec, message string, cause error) *AppError {
	return NewAppError(ErrTypeEstimation, message, cause).WithContext("spec", spec)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewValidationError creates a validation error for a named field
func NewValidationError(field, message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil).WithContext("field", field)
}

// IsType reports whether err is an AppError of the given type anywhere in
// its chain.
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok && appErr.Type == errType {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
