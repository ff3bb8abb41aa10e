// Package dto provides data transfer objects for the work remediation endpoints.
package dto

import (
	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	customValidation "github.com/allisson/whizbang/internal/validation"
)

// RetryPerspectiveRequest flags a failed checkpoint for processing again. With
// RewindTo set the perspective replays from after that event; with Rebuild set and
// no RewindTo it replays the whole stream.
type RetryPerspectiveRequest struct {
	StreamID        string  `json:"stream_id"`
	PerspectiveName string  `json:"perspective_name"`
	RewindTo        *string `json:"rewind_to,omitempty"`
	Rebuild         bool    `json:"rebuild,omitempty"`
}

// Validate checks if the retry perspective request is valid.
func (r *RetryPerspectiveRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.StreamID, validation.Required, customValidation.NotBlank, customValidation.NoWhitespace),
		validation.Field(&r.PerspectiveName, validation.Required, customValidation.Name),
		validation.Field(&r.RewindTo, validation.NilOrNotEmpty, customValidation.UUID),
	)
}

// RewindEventID returns the parsed RewindTo. Call after Validate.
func (r *RetryPerspectiveRequest) RewindEventID() *uuid.UUID {
	if r.RewindTo == nil {
		return nil
	}
	id := uuid.MustParse(*r.RewindTo)
	return &id
}

// Rewinds reports whether the request replays instead of resuming.
func (r *RetryPerspectiveRequest) Rewinds() bool {
	return r.Rebuild || r.RewindTo != nil
}
