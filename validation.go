package accounts

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// PasswordMinLength applies at signup and any password-setting step.
const PasswordMinLength = 8

// ValidatePassword collects every violation for a password value instead of
// failing fast on the first one.
func ValidatePassword(field, password string) []string {
	var messages []string

	if err := validation.Validate(password, validation.Required); err != nil {
		messages = append(messages, fmt.Sprintf("%s is required", field))
		return messages
	}

	if err := validation.Validate(password, validation.Length(PasswordMinLength, 0)); err != nil {
		messages = append(messages, fmt.Sprintf("%s must be at least %d characters", field, PasswordMinLength))
	}

	return messages
}

// ValidateNewPassword validates a password pair used by change and reset
// confirmation steps: both fields meet the minimum length and match.
func ValidateNewPassword(newPassword, confirmPassword string) []string {
	var messages []string

	messages = append(messages, ValidatePassword("new password", newPassword)...)
	messages = append(messages, ValidatePassword("confirm password", confirmPassword)...)

	if newPassword != confirmPassword {
		messages = append(messages, "new password and confirm password do not match")
	}

	return messages
}

// ValidateEmail collects violations for an email address.
func ValidateEmail(email string) []string {
	var messages []string

	if err := validation.Validate(email, validation.Required); err != nil {
		messages = append(messages, "email is required")
		return messages
	}

	if err := validation.Validate(email, is.Email); err != nil {
		messages = append(messages, "email must be a valid email address")
	}

	return messages
}
