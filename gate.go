package accounts

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// Gate resolves a session credential into an account and enforces role
// requirements. Every protected operation goes through it before touching
// domain state.
type Gate struct {
	users  Users
	issuer *TokenIssuer
	logger Logger
}

// GateOption customizes gate construction.
type GateOption func(*Gate)

// WithGateLogger overrides the default logger.
func WithGateLogger(logger Logger) GateOption {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGate builds a Gate over the given user repository and token issuer.
func NewGate(users Users, issuer *TokenIssuer, opts ...GateOption) *Gate {
	g := &Gate{
		users:  users,
		issuer: issuer,
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// Authenticate maps a session credential to its account. The credential must
// reference a live session token and the account must be verified and in
// good standing. Unverified accounts are reported as not found so the
// response does not leak whether an address is mid-signup.
func (g *Gate) Authenticate(ctx context.Context, credential string) (*User, error) {
	return g.AuthenticateTx(ctx, nil, credential)
}

// AuthenticateTx is Authenticate inside an existing transaction.
func (g *Gate) AuthenticateTx(ctx context.Context, tx bun.IDB, credential string) (*User, error) {
	if credential == "" {
		return nil, ErrUnauthorized
	}

	token, err := g.issuer.ValidateTx(ctx, tx, credential, TokenAuthed)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	user, err := g.users.GetByIDTx(ctx, tx, token.UserID)
	if err != nil {
		if goerrors.IsNotFound(err) {
			g.logger.Warn("session token %s references missing account %s", token.ID, token.UserID)
			return nil, ErrAccountNotFound
		}
		return nil, WrapInternal(err, "failed to load account for session")
	}

	if !user.IsVerified() {
		return nil, ErrAccountNotFound
	}

	if user.IsSuspended() {
		return nil, ErrAccountSuspended
	}

	return user, nil
}

// RequireAdmin authenticates and then demands the admin role.
func (g *Gate) RequireAdmin(ctx context.Context, credential string) (*User, error) {
	return g.RequireAdminTx(ctx, nil, credential)
}

// RequireAdminTx is RequireAdmin inside an existing transaction.
func (g *Gate) RequireAdminTx(ctx context.Context, tx bun.IDB, credential string) (*User, error) {
	user, err := g.AuthenticateTx(ctx, tx, credential)
	if err != nil {
		return nil, err
	}

	if !user.IsAdmin() {
		return nil, ErrAccessDenied
	}

	return user, nil
}

// RequireNonAdmin authenticates and then demands a non admin role. Admin
// accounts manage their credentials through provisioning instead of the
// self-service flows.
func (g *Gate) RequireNonAdmin(ctx context.Context, credential string) (*User, error) {
	return g.RequireNonAdminTx(ctx, nil, credential)
}

// RequireNonAdminTx is RequireNonAdmin inside an existing transaction.
func (g *Gate) RequireNonAdminTx(ctx context.Context, tx bun.IDB, credential string) (*User, error) {
	user, err := g.AuthenticateTx(ctx, tx, credential)
	if err != nil {
		return nil, err
	}

	if user.IsAdmin() {
		return nil, ErrAccessDenied
	}

	return user, nil
}
