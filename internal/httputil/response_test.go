package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/whizbang/internal/errors"
)

func TestHandleErrorGin(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name         string
		err          error
		expectedCode int
		expectedErr  string
	}{
		{
			name:         "not found",
			err:          apperrors.Wrap(apperrors.ErrNotFound, "outbox message not found"),
			expectedCode: http.StatusNotFound,
			expectedErr:  "not_found",
		},
		{
			name:         "conflict",
			err:          apperrors.Wrap(apperrors.ErrConflict, "concurrency conflict"),
			expectedCode: http.StatusConflict,
			expectedErr:  "conflict",
		},
		{
			name:         "invalid input",
			err:          apperrors.Wrap(apperrors.ErrInvalidInput, "stream id is required"),
			expectedCode: http.StatusUnprocessableEntity,
			expectedErr:  "invalid_input",
		},
		{
			name:         "unavailable",
			err:          apperrors.Wrap(apperrors.ErrUnavailable, "transport unavailable"),
			expectedCode: http.StatusServiceUnavailable,
			expectedErr:  "unavailable",
		},
		{
			name:         "internal",
			err:          errors.New("connection reset"),
			expectedCode: http.StatusInternalServerError,
			expectedErr:  "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/v1/work/failed/outbox", nil)

			HandleErrorGin(c, tt.err, slog.New(slog.NewTextHandler(io.Discard, nil)))

			assert.Equal(t, tt.expectedCode, w.Code)
			var response ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tt.expectedErr, response.Error)
		})
	}
}

func TestHandleErrorGin_NilError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	HandleErrorGin(c, nil, nil)

	assert.Empty(t, w.Body.String())
}

func TestHandleValidationErrorGin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/work/perspectives/retry", nil)

	HandleValidationErrorGin(c, errors.New("stream_id: cannot be blank."), nil)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var response ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "validation_error", response.Error)
	assert.Equal(t, "stream_id: cannot be blank.", response.Message)
}

func TestHandleBadRequestGin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/work/outbox/not-a-uuid/retry", nil)

	HandleBadRequestGin(c, errors.New("invalid message id"), slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "bad_request")
}

func TestHandleErrorGin_HidesInternalDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/v1/instances", nil)

	HandleErrorGin(c, errors.New("pq: password authentication failed"), nil)

	assert.NotContains(t, w.Body.String(), "password")
}

func TestHandleErrorGin_EchoesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(requestid.New(requestid.WithGenerator(func() string { return "req-42" })))
	router.GET("/fail", func(c *gin.Context) {
		HandleErrorGin(c, apperrors.ErrNotFound, nil)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	var response ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "req-42", response.RequestID)
}
