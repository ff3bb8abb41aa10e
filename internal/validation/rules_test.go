package validation

import (
	"testing"

	validation "github.com/jellydator/validation"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/allisson/whizbang/internal/errors"
)

func TestWrapValidationError(t *testing.T) {
	assert.Nil(t, WrapValidationError(nil))

	err := WrapValidationError(validation.NewError("x", "must be set"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "must be set")
}

func TestRules(t *testing.T) {
	tests := []struct {
		name      string
		rule      validation.Rule
		value     string
		shouldErr bool
	}{
		{name: "not blank accepts text", rule: NotBlank, value: "order-123"},
		{name: "not blank rejects spaces", rule: NotBlank, value: "   ", shouldErr: true},
		{name: "no whitespace accepts trimmed", rule: NoWhitespace, value: "orders"},
		{name: "no whitespace rejects padding", rule: NoWhitespace, value: " orders", shouldErr: true},
		{name: "uuid accepts canonical", rule: UUID, value: "0190a3c4-8f2e-7b6a-9c1d-2e3f4a5b6c7d"},
		{name: "uuid rejects braces", rule: UUID, value: "{0190a3c4-8f2e-7b6a-9c1d-2e3f4a5b6c7d}", shouldErr: true},
		{name: "uuid rejects garbage", rule: UUID, value: "order-123", shouldErr: true},
		{name: "name accepts dotted", rule: Name, value: "billing.send-invoice_v2"},
		{name: "name rejects leading digit", rule: Name, value: "2fast", shouldErr: true},
		{name: "name rejects slash", rule: Name, value: "a/b", shouldErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validation.Validate(tt.value, tt.rule)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
