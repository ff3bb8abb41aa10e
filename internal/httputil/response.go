// Package httputil provides HTTP utility functions for request and response handling.
package httputil

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"

	apperrors "github.com/allisson/whizbang/internal/errors"
)

// ErrorResponse is the body of every non-2xx ops API response. RequestID echoes the
// X-Request-Id header when the requestid middleware is installed.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string // empty exposes err.Error()
}

// errorMappings is checked in order; the first sentinel found in the chain wins.
var errorMappings = []errorMapping{
	{apperrors.ErrNotFound, http.StatusNotFound, "not_found", "The requested work item was not found"},
	{apperrors.ErrConflict, http.StatusConflict, "conflict", "The work item is not in a state that allows this"},
	{apperrors.ErrInvalidInput, http.StatusUnprocessableEntity, "invalid_input", ""},
	{apperrors.ErrUnavailable, http.StatusServiceUnavailable, "unavailable", "A dependency is temporarily unavailable"},
}

// HandleErrorGin maps domain errors to HTTP status codes and writes a JSON body.
// Unmapped errors become 500 without exposing their text.
func HandleErrorGin(c *gin.Context, err error, logger *slog.Logger) {
	if err == nil {
		return
	}

	status := http.StatusInternalServerError
	response := ErrorResponse{Error: "internal_error", Message: "An internal error occurred"}
	for _, m := range errorMappings {
		if apperrors.Is(err, m.target) {
			status = m.status
			response = ErrorResponse{Error: m.code, Message: m.message}
			if m.message == "" {
				response.Message = err.Error()
			}
			break
		}
	}

	if logger != nil {
		level := slog.LevelWarn
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "request failed",
			slog.Int("status_code", status),
			slog.String("error_code", response.Error),
			slog.Any("error", err),
		)
	}

	writeError(c, status, response)
}

// HandleBadRequestGin writes a 400 for malformed parameters or bodies.
func HandleBadRequestGin(c *gin.Context, err error, logger *slog.Logger) {
	if logger != nil {
		logger.Warn("bad request", slog.Any("error", err))
	}
	writeError(c, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: err.Error()})
}

// HandleValidationErrorGin writes a 422 for requests failing validation.
func HandleValidationErrorGin(c *gin.Context, err error, logger *slog.Logger) {
	if logger != nil {
		logger.Warn("validation failed", slog.Any("error", err))
	}
	writeError(c, http.StatusUnprocessableEntity, ErrorResponse{Error: "validation_error", Message: err.Error()})
}

func writeError(c *gin.Context, status int, response ErrorResponse) {
	response.RequestID = requestid.Get(c)
	c.JSON(status, response)
}
