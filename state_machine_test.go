package accounts_test

import (
	"context"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		name       string
		start      accounts.User
		transition func(accounts.User) (accounts.User, error)
		wantErr    bool
		check      func(t *testing.T, got accounts.User)
	}{
		{
			name:       "confirm signup verifies a pending account",
			start:      accounts.User{AuthStatus: accounts.AuthStatusPending, Standing: accounts.StandingActive},
			transition: accounts.TransitionConfirmSignup,
			check: func(t *testing.T, got accounts.User) {
				assert.Equal(t, accounts.AuthStatusVerified, got.AuthStatus)
			},
		},
		{
			name:       "suspend an active account",
			start:      accounts.User{AuthStatus: accounts.AuthStatusVerified, Standing: accounts.StandingActive},
			transition: accounts.TransitionSuspend,
			check: func(t *testing.T, got accounts.User) {
				assert.Equal(t, accounts.StandingSuspended, got.Standing)
			},
		},
		{
			name:       "suspend an already suspended account",
			start:      accounts.User{AuthStatus: accounts.AuthStatusVerified, Standing: accounts.StandingSuspended},
			transition: accounts.TransitionSuspend,
			wantErr:    true,
		},
		{
			name:       "reinstate a suspended account",
			start:      accounts.User{AuthStatus: accounts.AuthStatusVerified, Standing: accounts.StandingSuspended},
			transition: accounts.TransitionReinstate,
			check: func(t *testing.T, got accounts.User) {
				assert.Equal(t, accounts.StandingActive, got.Standing)
			},
		},
		{
			name:       "reinstate an active account",
			start:      accounts.User{AuthStatus: accounts.AuthStatusVerified, Standing: accounts.StandingActive},
			transition: accounts.TransitionReinstate,
			wantErr:    true,
		},
		{
			name:       "demote an admin",
			start:      accounts.User{AuthStatus: accounts.AuthStatusVerified, Standing: accounts.StandingActive, Role: accounts.RoleAdmin},
			transition: accounts.TransitionDemote,
			check: func(t *testing.T, got accounts.User) {
				assert.Equal(t, accounts.RoleUser, got.Role)
			},
		},
		{
			name:  "provision verifies and assigns the role",
			start: accounts.User{AuthStatus: accounts.AuthStatusPending, Standing: accounts.StandingActive},
			transition: func(u accounts.User) (accounts.User, error) {
				return accounts.TransitionProvision(u, accounts.RoleAdmin)
			},
			check: func(t *testing.T, got accounts.User) {
				assert.Equal(t, accounts.AuthStatusVerified, got.AuthStatus)
				assert.Equal(t, accounts.RoleAdmin, got.Role)
			},
		},
		{
			name:  "provision rejects an unknown role",
			start: accounts.User{AuthStatus: accounts.AuthStatusPending, Standing: accounts.StandingActive},
			transition: func(u accounts.User) (accounts.User, error) {
				return accounts.TransitionProvision(u, "overlord")
			},
			wantErr: true,
		},
		{
			name:  "rotate credential rejects an empty hash",
			start: accounts.User{AuthStatus: accounts.AuthStatusVerified, Standing: accounts.StandingActive},
			transition: func(u accounts.User) (accounts.User, error) {
				return accounts.TransitionRotateCredential(u, "")
			},
			wantErr: true,
		},
		{
			name:  "rotate email rejects an empty address",
			start: accounts.User{AuthStatus: accounts.AuthStatusVerified, Standing: accounts.StandingActive},
			transition: func(u accounts.User) (accounts.User, error) {
				return accounts.TransitionRotateEmail(u, "")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.transition(tt.start)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, goerrors.As(err, new(*goerrors.Error)))
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, got)
			}
		})
	}
}

func TestStateMachine_Apply(t *testing.T) {
	actor := accounts.ActorRef{ID: uuid.New().String(), Type: "admin"}

	t.Run("persists the snapshot and emits an event", func(t *testing.T) {
		users := &MockUsers{}
		sink := &capturingSink{}
		machine := accounts.NewStateMachine(users,
			accounts.WithStateMachineClock(frozenClock),
			accounts.WithStateMachineActivitySink(sink),
		)

		user := verifiedUser(accounts.RoleUser)

		var persisted *accounts.User
		users.On("UpdateTx", mock.Anything, mock.Anything, mock.AnythingOfType("*accounts.User")).
			Run(func(args mock.Arguments) {
				persisted = args.Get(2).(*accounts.User)
			}).
			Return(nil, nil)

		got, err := machine.Suspend(context.Background(), nil, actor, user)
		require.NoError(t, err)

		require.NotNil(t, persisted)
		assert.Equal(t, accounts.StandingSuspended, persisted.Standing)
		require.NotNil(t, persisted.UpdatedAt)
		assert.Equal(t, frozenNow, *persisted.UpdatedAt)

		// the input snapshot is never mutated in place
		assert.Equal(t, accounts.StandingActive, user.Standing)
		assert.Equal(t, accounts.StandingSuspended, got.Standing)

		require.Len(t, sink.events, 1)
		evt := sink.events[0]
		assert.Equal(t, accounts.ActivityEventStandingChanged, evt.EventType)
		assert.Equal(t, actor, evt.Actor)
		assert.Equal(t, user.ID.String(), evt.UserID)
		assert.Equal(t, accounts.StandingActive, evt.FromStanding)
		assert.Equal(t, accounts.StandingSuspended, evt.ToStanding)
		assert.Equal(t, frozenNow, evt.OccurredAt)
	})

	t.Run("does not persist or emit when the transition fails", func(t *testing.T) {
		users := &MockUsers{}
		sink := &capturingSink{}
		machine := accounts.NewStateMachine(users,
			accounts.WithStateMachineActivitySink(sink),
		)

		user := verifiedUser(accounts.RoleUser)
		user.Standing = accounts.StandingSuspended

		_, err := machine.Suspend(context.Background(), nil, actor, user)
		require.Error(t, err)

		users.AssertNotCalled(t, "UpdateTx", mock.Anything, mock.Anything, mock.Anything)
		assert.Empty(t, sink.events)
	})

	t.Run("nil user is rejected", func(t *testing.T) {
		users := &MockUsers{}
		machine := accounts.NewStateMachine(users)

		_, err := machine.ConfirmSignup(context.Background(), nil, actor, nil)
		require.Error(t, err)
	})
}

func TestStateMachine_RotateEmail(t *testing.T) {
	actor := accounts.ActorRef{Type: "user"}

	t.Run("rejects an address held by another account", func(t *testing.T) {
		users := &MockUsers{}
		machine := accounts.NewStateMachine(users)

		user := verifiedUser(accounts.RoleUser)
		other := verifiedUser(accounts.RoleUser)
		other.Email = "taken@example.com"

		users.On("GetByEmailTx", mock.Anything, mock.Anything, "taken@example.com").
			Return(other, nil)

		_, err := machine.RotateEmail(context.Background(), nil, actor, user, "taken@example.com")
		assert.ErrorIs(t, err, accounts.ErrEmailTaken)
		users.AssertNotCalled(t, "UpdateTx", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("allows rotating to an unclaimed address", func(t *testing.T) {
		users := &MockUsers{}
		sink := &capturingSink{}
		machine := accounts.NewStateMachine(users,
			accounts.WithStateMachineClock(frozenClock),
			accounts.WithStateMachineActivitySink(sink),
		)

		user := verifiedUser(accounts.RoleUser)

		users.On("GetByEmailTx", mock.Anything, mock.Anything, "next@example.com").
			Return(nil, goerrors.New("record not found", goerrors.CategoryNotFound))

		var persisted *accounts.User
		users.On("UpdateTx", mock.Anything, mock.Anything, mock.AnythingOfType("*accounts.User")).
			Run(func(args mock.Arguments) {
				persisted = args.Get(2).(*accounts.User)
			}).
			Return(nil, nil)

		_, err := machine.RotateEmail(context.Background(), nil, actor, user, "next@example.com")
		require.NoError(t, err)

		require.NotNil(t, persisted)
		assert.Equal(t, "next@example.com", persisted.Email)
		require.Len(t, sink.events, 1)
		assert.Equal(t, accounts.ActivityEventEmailChanged, sink.events[0].EventType)
	})

	t.Run("rotating to the address you already hold is a no-op conflict-wise", func(t *testing.T) {
		users := &MockUsers{}
		machine := accounts.NewStateMachine(users)

		user := verifiedUser(accounts.RoleUser)
		users.On("GetByEmailTx", mock.Anything, mock.Anything, user.Email).
			Return(user, nil)
		users.On("UpdateTx", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, nil)

		_, err := machine.RotateEmail(context.Background(), nil, actor, user, user.Email)
		require.NoError(t, err)
	})
}
