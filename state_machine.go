package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

const (
	textCodeInvalidTransition = "accounts_invalid_state_transition"
)

// ErrInvalidTransition is returned when a requested account change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid account state transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// Transition functions are pure: they take an account snapshot and return the
// next snapshot. Persistence is the state machine's separate write step, so
// a failed write never leaves a half-mutated entity behind.

// TransitionConfirmSignup moves a pending account to verified. Only a
// successful Signup token validation may trigger it; the machine trusts its
// caller on that.
func TransitionConfirmSignup(u User) (User, error) {
	u.AuthStatus = AuthStatusVerified
	return u, nil
}

// TransitionSuspend moves an active account to suspended.
func TransitionSuspend(u User) (User, error) {
	if u.Standing != StandingActive {
		return u, ErrInvalidTransition.WithMetadata(map[string]any{
			"from": u.Standing,
			"to":   StandingSuspended,
		})
	}
	u.Standing = StandingSuspended
	return u, nil
}

// TransitionReinstate moves a suspended account back to active.
func TransitionReinstate(u User) (User, error) {
	if u.Standing != StandingSuspended {
		return u, ErrInvalidTransition.WithMetadata(map[string]any{
			"from": u.Standing,
			"to":   StandingActive,
		})
	}
	u.Standing = StandingActive
	return u, nil
}

// TransitionDemote sets the normal role. It is the only transition that
// removes admin.
func TransitionDemote(u User) (User, error) {
	u.Role = RoleUser
	return u, nil
}

// TransitionProvision marks an admin-created account verified with an
// explicit role, bypassing the signup confirmation step.
func TransitionProvision(u User, role UserRole) (User, error) {
	if !IsValidRole(role) {
		return u, ErrInvalidTransition.WithMetadata(map[string]any{
			"role": role,
		})
	}
	u.AuthStatus = AuthStatusVerified
	u.Role = role
	return u, nil
}

// TransitionRotateCredential replaces the password hash. Auth status, role
// and standing are untouched.
func TransitionRotateCredential(u User, passwordHash string) (User, error) {
	if passwordHash == "" {
		return u, ErrInvalidTransition.WithMetadata(map[string]any{
			"reason": "empty password hash",
		})
	}
	u.PasswordHash = passwordHash
	return u, nil
}

// TransitionRotateEmail replaces the account email. Uniqueness against other
// accounts is checked by the state machine before persisting.
func TransitionRotateEmail(u User, email string) (User, error) {
	if email == "" {
		return u, ErrInvalidTransition.WithMetadata(map[string]any{
			"reason": "empty email",
		})
	}
	u.Email = email
	return u, nil
}

// StateMachine executes account transitions and persists the resulting
// snapshot. It does not validate tokens; flows gate every call with the
// matching token validation first.
type StateMachine struct {
	users        Users
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*StateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *StateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *StateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *StateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// NewStateMachine returns the default implementation backed by the provided repository.
func NewStateMachine(users Users, opts ...StateMachineOption) *StateMachine {
	sm := &StateMachine{
		users:        users,
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

// ConfirmSignup persists the pending -> verified transition.
func (sm *StateMachine) ConfirmSignup(ctx context.Context, tx bun.IDB, actor ActorRef, user *User) (*User, error) {
	return sm.apply(ctx, tx, actor, user, ActivityEventSignupConfirmed, TransitionConfirmSignup)
}

// Suspend persists the active -> suspended transition. Admin-only; the role
// check happens at the gate.
func (sm *StateMachine) Suspend(ctx context.Context, tx bun.IDB, actor ActorRef, user *User) (*User, error) {
	return sm.apply(ctx, tx, actor, user, ActivityEventStandingChanged, TransitionSuspend)
}

// Reinstate persists the suspended -> active transition.
func (sm *StateMachine) Reinstate(ctx context.Context, tx bun.IDB, actor ActorRef, user *User) (*User, error) {
	return sm.apply(ctx, tx, actor, user, ActivityEventStandingChanged, TransitionReinstate)
}

// Demote persists the role change to the normal role.
func (sm *StateMachine) Demote(ctx context.Context, tx bun.IDB, actor ActorRef, user *User) (*User, error) {
	return sm.apply(ctx, tx, actor, user, ActivityEventRoleChanged, TransitionDemote)
}

// RotateCredential persists a new password hash.
func (sm *StateMachine) RotateCredential(ctx context.Context, tx bun.IDB, actor ActorRef, user *User, passwordHash string) (*User, error) {
	return sm.apply(ctx, tx, actor, user, ActivityEventPasswordChanged, func(u User) (User, error) {
		return TransitionRotateCredential(u, passwordHash)
	})
}

// RotateEmail persists a new email after checking no other account holds it.
func (sm *StateMachine) RotateEmail(ctx context.Context, tx bun.IDB, actor ActorRef, user *User, email string) (*User, error) {
	existing, err := sm.users.GetByEmailTx(ctx, tx, email)
	if err != nil && !goerrors.IsNotFound(err) {
		return nil, WrapInternal(err, "failed to check email availability")
	}
	if existing != nil && existing.ID != user.ID {
		return nil, ErrEmailTaken
	}

	return sm.apply(ctx, tx, actor, user, ActivityEventEmailChanged, func(u User) (User, error) {
		return TransitionRotateEmail(u, email)
	})
}

func (sm *StateMachine) apply(ctx context.Context, tx bun.IDB, actor ActorRef, user *User, event ActivityEventType, transition func(User) (User, error)) (*User, error) {
	if user == nil {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"reason": "user is nil",
		})
	}

	from := user.Snapshot()
	next, err := transition(from)
	if err != nil {
		return nil, err
	}

	now := sm.now()
	next.UpdatedAt = &now

	updated, err := sm.users.UpdateTx(ctx, tx, &next)
	if err != nil {
		return nil, WrapInternal(err, "failed to persist account transition")
	}
	if updated == nil {
		updated = &next
	}

	sm.recordActivity(ctx, ActivityEvent{
		EventType:    event,
		Actor:        actor,
		UserID:       updated.ID.String(),
		FromStanding: from.Standing,
		ToStanding:   updated.Standing,
	})

	return updated, nil
}

func (sm *StateMachine) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: "system"}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = sm.now()
	}

	sink := normalizeActivitySink(sm.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		sm.logger.Warn("state machine activity sink error: %v", err)
	}
}
