package accounts_test

import (
	"context"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type gateFixture struct {
	users  *MockUsers
	tokens *MockTokens
	gate   *accounts.Gate
}

func newGateFixture() *gateFixture {
	users := &MockUsers{}
	tokens := &MockTokens{}
	issuer := accounts.NewTokenIssuer(tokens, accounts.WithTokenClock(frozenClock))
	return &gateFixture{
		users:  users,
		tokens: tokens,
		gate:   accounts.NewGate(users, issuer),
	}
}

func (f *gateFixture) withSession(credential string, user *accounts.User) {
	f.tokens.On("GetByValueTx", mock.Anything, mock.Anything, credential).
		Return(&accounts.Token{
			ID:        uuid.New(),
			Type:      accounts.TokenAuthed,
			Value:     credential,
			UserID:    user.ID,
			ExpiresAt: frozenNow.Add(time.Hour),
		}, nil)
	f.users.On("GetByIDTx", mock.Anything, mock.Anything, user.ID).
		Return(user, nil)
}

func verifiedUser(role accounts.UserRole) *accounts.User {
	return &accounts.User{
		ID:         uuid.New(),
		Email:      "person@example.com",
		Username:   "person",
		AuthStatus: accounts.AuthStatusVerified,
		Standing:   accounts.StandingActive,
		Role:       role,
	}
}

func TestGate_Authenticate(t *testing.T) {
	t.Run("empty credential is unauthorized", func(t *testing.T) {
		f := newGateFixture()

		_, err := f.gate.Authenticate(context.Background(), "")
		assert.ErrorIs(t, err, accounts.ErrUnauthorized)
	})

	t.Run("unknown credential is unauthorized", func(t *testing.T) {
		f := newGateFixture()
		f.tokens.On("GetByValueTx", mock.Anything, mock.Anything, "nope").
			Return(nil, goerrors.New("record not found", goerrors.CategoryNotFound))

		_, err := f.gate.Authenticate(context.Background(), "nope")
		assert.ErrorIs(t, err, accounts.ErrUnauthorized)
	})

	t.Run("expired session surfaces as expired, not unauthorized", func(t *testing.T) {
		f := newGateFixture()
		f.tokens.On("GetByValueTx", mock.Anything, mock.Anything, "stale").
			Return(&accounts.Token{
				ID:        uuid.New(),
				Type:      accounts.TokenAuthed,
				Value:     "stale",
				UserID:    uuid.New(),
				ExpiresAt: frozenNow.Add(-time.Minute),
			}, nil)

		_, err := f.gate.Authenticate(context.Background(), "stale")
		assert.ErrorIs(t, err, accounts.ErrTokenExpired)
	})

	t.Run("session pointing at a deleted account", func(t *testing.T) {
		f := newGateFixture()
		orphanID := uuid.New()
		f.tokens.On("GetByValueTx", mock.Anything, mock.Anything, "orphan").
			Return(&accounts.Token{
				ID:        uuid.New(),
				Type:      accounts.TokenAuthed,
				Value:     "orphan",
				UserID:    orphanID,
				ExpiresAt: frozenNow.Add(time.Hour),
			}, nil)
		f.users.On("GetByIDTx", mock.Anything, mock.Anything, orphanID).
			Return(nil, goerrors.New("record not found", goerrors.CategoryNotFound))

		_, err := f.gate.Authenticate(context.Background(), "orphan")
		assert.ErrorIs(t, err, accounts.ErrAccountNotFound)
	})

	t.Run("unverified account is reported as not found", func(t *testing.T) {
		f := newGateFixture()
		user := verifiedUser(accounts.RoleUser)
		user.AuthStatus = accounts.AuthStatusPending
		f.withSession("cred", user)

		_, err := f.gate.Authenticate(context.Background(), "cred")
		assert.ErrorIs(t, err, accounts.ErrAccountNotFound)
	})

	t.Run("suspended account is rejected", func(t *testing.T) {
		f := newGateFixture()
		user := verifiedUser(accounts.RoleUser)
		user.Standing = accounts.StandingSuspended
		f.withSession("cred", user)

		_, err := f.gate.Authenticate(context.Background(), "cred")
		assert.ErrorIs(t, err, accounts.ErrAccountSuspended)
	})

	t.Run("verified active account authenticates", func(t *testing.T) {
		f := newGateFixture()
		user := verifiedUser(accounts.RoleUser)
		f.withSession("cred", user)

		got, err := f.gate.Authenticate(context.Background(), "cred")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
	})
}

func TestGate_RequireAdmin(t *testing.T) {
	t.Run("denies a regular account", func(t *testing.T) {
		f := newGateFixture()
		f.withSession("cred", verifiedUser(accounts.RoleUser))

		_, err := f.gate.RequireAdmin(context.Background(), "cred")
		assert.ErrorIs(t, err, accounts.ErrAccessDenied)
	})

	t.Run("admits an admin account", func(t *testing.T) {
		f := newGateFixture()
		admin := verifiedUser(accounts.RoleAdmin)
		f.withSession("cred", admin)

		got, err := f.gate.RequireAdmin(context.Background(), "cred")
		require.NoError(t, err)
		assert.Equal(t, admin.ID, got.ID)
	})

	t.Run("expiry is reported before the role check", func(t *testing.T) {
		f := newGateFixture()
		f.tokens.On("GetByValueTx", mock.Anything, mock.Anything, "stale").
			Return(&accounts.Token{
				ID:        uuid.New(),
				Type:      accounts.TokenAuthed,
				Value:     "stale",
				UserID:    uuid.New(),
				ExpiresAt: frozenNow.Add(-time.Minute),
			}, nil)

		_, err := f.gate.RequireAdmin(context.Background(), "stale")
		assert.ErrorIs(t, err, accounts.ErrTokenExpired)
	})
}

func TestGate_RequireNonAdmin(t *testing.T) {
	t.Run("denies an admin account", func(t *testing.T) {
		f := newGateFixture()
		f.withSession("cred", verifiedUser(accounts.RoleAdmin))

		_, err := f.gate.RequireNonAdmin(context.Background(), "cred")
		assert.ErrorIs(t, err, accounts.ErrAccessDenied)
	})

	t.Run("admits a regular account", func(t *testing.T) {
		f := newGateFixture()
		user := verifiedUser(accounts.RoleUser)
		f.withSession("cred", user)

		got, err := f.gate.RequireNonAdmin(context.Background(), "cred")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
	})
}
