// Package apperror defines the error taxonomy shared by the service and
// handler layers.
//
// Services return *AppError values wrapping one of the sentinels below.
// Handlers never inspect messages; they call errors.Is against the sentinel
// and pick a status code from that.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrAuthRequired = errors.New("authentication required")
	ErrInternal     = errors.New("internal error")
)

type AppError struct {
	Err     error  // sentinel used for classification
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying store or transport fault, logged but never shown
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// AuthRequired returns an AppError for operations that need a bound session.
func AuthRequired(message string) *AppError {
	return &AppError{
		Err:     ErrAuthRequired,
		Message: message,
	}
}

// Internal wraps a store-layer fault. The cause stays attached for logging;
// Message is what the client sees.
func Internal(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrInternal,
		Message: message,
		Cause:   cause,
	}
}
