package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AuthStatus tracks whether an account completed signup confirmation.
type AuthStatus = string

const (
	// AuthStatusPending is assigned at signup, before confirmation
	AuthStatusPending AuthStatus = "pending"
	// AuthStatusVerified means the account confirmed a signup token
	AuthStatusVerified AuthStatus = "verified"
)

// Standing is the suspension axis of an account, orthogonal to AuthStatus.
type Standing = string

const (
	StandingActive    Standing = "active"
	StandingSuspended Standing = "suspended"
)

// UserRole is the user's role
type UserRole = string

const (
	// RoleUser is a normal account (i.e. self-service flows)
	RoleUser UserRole = "user"
	// RoleAdmin can provision, suspend, and delete accounts
	RoleAdmin UserRole = "admin"
)

// User is the account model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Username      string     `bun:"username,notnull" json:"username,omitempty"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	AuthStatus    AuthStatus `bun:"auth_status,notnull" json:"auth_status,omitempty"`
	Standing      Standing   `bun:"standing,notnull" json:"standing,omitempty"`
	Role          UserRole   `bun:"user_role,notnull" json:"user_role,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// EnsureDefaults fills zero-value lifecycle fields on new records.
func (u *User) EnsureDefaults() {
	if u.AuthStatus == "" {
		u.AuthStatus = AuthStatusPending
	}
	if u.Standing == "" {
		u.Standing = StandingActive
	}
}

// IsVerified reports whether the account confirmed its signup.
func (u *User) IsVerified() bool {
	return u.AuthStatus == AuthStatusVerified
}

// IsActive reports whether the account is in good standing.
func (u *User) IsActive() bool {
	return u.Standing == StandingActive
}

// IsSuspended reports whether the account has been suspended.
func (u *User) IsSuspended() bool {
	return u.Standing == StandingSuspended
}

// IsAdmin reports whether the account holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Snapshot returns a value copy used by state machine transitions. Transitions
// operate on the copy; persistence is a separate write step.
func (u *User) Snapshot() User {
	return *u
}

// TokenType scopes a token to the single flow allowed to consume it.
type TokenType = string

const (
	// TokenSignup confirms a pending account
	TokenSignup TokenType = "signup"
	// TokenAuthed is the session credential issued at login
	TokenAuthed TokenType = "authed"
	// TokenPasswordChange finalizes a password change staged on the token
	TokenPasswordChange TokenType = "password_change"
	// TokenEmailChange finalizes an email change staged on the token
	TokenEmailChange TokenType = "email_change"
	// TokenPasswordReset authorizes an out-of-band password reset
	TokenPasswordReset TokenType = "password_reset"
)

// TokenTypes returns every supported token type.
func TokenTypes() []TokenType {
	return []TokenType{
		TokenSignup,
		TokenAuthed,
		TokenPasswordChange,
		TokenEmailChange,
		TokenPasswordReset,
	}
}

// IsValidTokenType checks the type against the closed set above.
func IsValidTokenType(t TokenType) bool {
	switch t {
	case TokenSignup, TokenAuthed, TokenPasswordChange, TokenEmailChange, TokenPasswordReset:
		return true
	default:
		return false
	}
}

// Token is a single-use, purpose-scoped credential. PendingEmail and
// PendingPasswordHash stage a mutation that is applied only when the owning
// flow validates and consumes the token.
type Token struct {
	bun.BaseModel       `bun:"table:tokens,alias:tkn"`
	ID                  uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Type                TokenType  `bun:"token_type,notnull" json:"token_type,omitempty"`
	Value               string     `bun:"value,notnull,unique" json:"-"`
	UserID              uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	ExpiresAt           time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	PendingEmail        string     `bun:"pending_email,nullzero" json:"-"`
	PendingPasswordHash string     `bun:"pending_password_hash,nullzero" json:"-"`
	CreatedAt           *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt           *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Expired reports whether the token is past its TTL at the given instant.
func (t *Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// BootstrapGuard is a single reserved row claimed by the first account ever
// created. The conditional insert makes the first-admin assignment race-safe
// where a plain count of existing users is not.
type BootstrapGuard struct {
	bun.BaseModel `bun:"table:account_bootstrap,alias:btsp"`
	ID            int64      `bun:"id,pk" json:"id"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// bootstrapGuardID is the reserved primary key for the single guard row.
const bootstrapGuardID int64 = 1
