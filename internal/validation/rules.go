// Package validation provides custom validation rules for the application.
package validation

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/whizbang/internal/errors"
)

var (
	// nameRegex matches handler and perspective names: a letter followed by letters,
	// digits, dots, dashes or underscores.
	nameRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9._\-]*$`)
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// NoWhitespace validates that string doesn't contain leading/trailing whitespace
var NoWhitespace = validation.NewStringRuleWithError(
	func(s string) bool {
		return s == strings.TrimSpace(s)
	},
	validation.NewError("validation_no_whitespace", "must not contain leading or trailing whitespace"),
)

// NotBlank validates that a string is not empty after trimming whitespace
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)

// UUID validates that a string is a canonical UUID.
var UUID = validation.NewStringRuleWithError(
	func(s string) bool {
		_, err := uuid.Parse(s)
		return err == nil && len(s) == 36
	},
	validation.NewError("validation_uuid", "must be a valid UUID"),
)

// Name validates handler and perspective names.
var Name = validation.NewStringRuleWithError(
	func(s string) bool {
		return nameRegex.MatchString(s)
	},
	validation.NewError("validation_name", "must start with a letter and contain only letters, digits, '.', '-' or '_'"),
)
