package accounts

import (
	"github.com/goliatone/go-errors"
)

const (
	TextCodeUnauthorized     = "accounts_unauthorized"
	TextCodeTokenExpired     = "accounts_token_expired"
	TextCodeInvalidTokenType = "accounts_invalid_token_type"
	TextCodeTokenNotFound    = "accounts_token_not_found"
	TextCodeAccessDenied     = "accounts_access_denied"
	TextCodeAccountNotFound  = "accounts_not_found"
	TextCodeSuspended        = "accounts_suspended"
	TextCodeNotVerified      = "accounts_not_verified"
	TextCodeEmailTaken       = "accounts_email_taken"
	TextCodeValidationFailed = "accounts_validation_failed"
	TextCodeInvalidCreds     = "accounts_invalid_credentials"
)

// ErrUnauthorized is returned when no usable session credential is presented.
var ErrUnauthorized = errors.New("unauthorized access", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthorized).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is returned when a token is past its TTL.
var ErrTokenExpired = errors.New("token expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidTokenType is returned when a token is presented for the wrong purpose.
var ErrInvalidTokenType = errors.New("invalid token type", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidTokenType).
	WithCode(errors.CodeUnauthorized)

// ErrTokenNotFound is returned for unknown or already consumed token values.
var ErrTokenNotFound = errors.New("token not found", errors.CategoryNotFound).
	WithTextCode(TextCodeTokenNotFound).
	WithCode(errors.CodeNotFound)

// ErrAccessDenied is returned when a role check fails.
var ErrAccessDenied = errors.New("access denied", errors.CategoryAuth).
	WithTextCode(TextCodeAccessDenied).
	WithCode(errors.CodeForbidden)

// ErrAccountNotFound is returned for missing accounts. The gate also returns
// it for unverified accounts so callers cannot enumerate pending signups.
var ErrAccountNotFound = errors.New("account not found", errors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(errors.CodeNotFound)

// ErrAccountSuspended is returned when the account is not in good standing.
var ErrAccountSuspended = errors.New("account has been suspended", errors.CategoryAuth).
	WithTextCode(TextCodeSuspended).
	WithCode(errors.CodeForbidden)

// ErrAccountNotVerified is returned by login for accounts that never
// confirmed their signup token.
var ErrAccountNotVerified = errors.New("account pending confirmation", errors.CategoryAuth).
	WithTextCode(TextCodeNotVerified).
	WithCode(errors.CodeForbidden)

// ErrEmailTaken is returned when the target email belongs to another account.
var ErrEmailTaken = errors.New("email is already registered", errors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(errors.CodeConflict)

// ErrMismatchedHashAndPassword is returned when a password comparison fails.
var ErrMismatchedHashAndPassword = errors.New("the credentials provided are invalid", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(errors.CodeUnauthorized)

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = errors.New("password cannot be an empty string", errors.CategoryValidation).
	WithTextCode(TextCodeValidationFailed).
	WithCode(errors.CodeBadRequest)

// NewValidationError collects one or more human readable violations into a
// single validation failure. Messages are surfaced together, never just the
// first one.
func NewValidationError(messages []string) *errors.Error {
	msg := "validation failed"
	if len(messages) > 0 {
		msg = messages[0]
	}
	return errors.New(msg, errors.CategoryValidation).
		WithTextCode(TextCodeValidationFailed).
		WithCode(errors.CodeBadRequest).
		WithMetadata(map[string]any{
			"messages": messages,
		})
}

// ValidationMessages extracts the collected messages from a validation error.
func ValidationMessages(err error) []string {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return nil
	}
	raw, ok := richErr.Metadata["messages"]
	if !ok {
		return nil
	}
	if msgs, ok := raw.([]string); ok {
		return msgs
	}
	return nil
}

// IsDomainError reports whether err already carries our taxonomy, in which
// case flow handlers re-wrap it without changing its kind.
func IsDomainError(err error) bool {
	var richErr *errors.Error
	return errors.As(err, &richErr)
}

// WrapInternal shields storage internals from callers: domain errors pass
// through, anything else becomes a generic operation failure.
func WrapInternal(err error, msg string) error {
	if err == nil {
		return nil
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr
	}
	return errors.Wrap(err, errors.CategoryInternal, msg)
}
