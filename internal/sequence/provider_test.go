package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/allisson/whizbang/internal/errors"
)

func TestStreamKey(t *testing.T) {
	assert.Equal(t, "stream:order-123", StreamKey("order-123"))
}

func TestValidateKey(t *testing.T) {
	assert.NoError(t, ValidateKey("orders"))
	assert.ErrorIs(t, ValidateKey(""), apperrors.ErrInvalidInput)
	assert.ErrorIs(t, ValidateKey("   "), ErrEmptyKey)
}
