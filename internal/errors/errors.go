// Package errors provides standardized domain errors that express coordination intent
// rather than infrastructure details. Components wrap these sentinels so callers can
// branch on the category with errors.Is regardless of the storage dialect underneath.
package errors

import (
	"errors"
	"fmt"
)

// Standard domain errors that can be used across all components.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a conflict with existing data (e.g., duplicate key, stale version).
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates the input data is invalid or fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable indicates a collaborator (transport, database) cannot serve the request right now.
	// Errors in this category are retried by background workers.
	ErrUnavailable = errors.New("unavailable")

	// ErrTerminal indicates a logical failure that must not be retried automatically.
	ErrTerminal = errors.New("terminal failure")
)

// New creates a new error with the given message.
// This is a convenience wrapper around errors.New for consistency.
func New(message string) error {
	return errors.New(message)
}

// Wrap wraps an error with additional context while preserving the error chain.
// Use this to add context at each layer without losing the original error type.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's tree matches target.
// This is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
// This is a convenience wrapper around errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
