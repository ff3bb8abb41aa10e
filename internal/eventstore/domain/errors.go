package domain

import (
	"github.com/allisson/whizbang/internal/errors"
)

var (
	// ErrConcurrencyConflict indicates another append took the version first.
	// Callers retry with the refreshed last version.
	ErrConcurrencyConflict = errors.Wrap(errors.ErrConflict, "concurrency conflict")

	// ErrEventNotFound indicates the referenced event does not exist in the stream.
	ErrEventNotFound = errors.Wrap(errors.ErrNotFound, "event not found")

	// ErrInvalidEvent indicates a new event is missing required fields.
	ErrInvalidEvent = errors.Wrap(errors.ErrInvalidInput, "invalid event")

	// ErrEmptyStreamID indicates a blank stream id.
	ErrEmptyStreamID = errors.Wrap(errors.ErrInvalidInput, "stream id is required")
)
