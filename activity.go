package accounts

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventSignupRequested      ActivityEventType = "account.signup.requested"
	ActivityEventSignupConfirmed      ActivityEventType = "account.signup.confirmed"
	ActivityEventLoginSuccess         ActivityEventType = "account.login.success"
	ActivityEventLoginFailure         ActivityEventType = "account.login.failure"
	ActivityEventLogout               ActivityEventType = "account.logout"
	ActivityEventLogoutAll            ActivityEventType = "account.logout.all"
	ActivityEventStandingChanged      ActivityEventType = "account.standing.changed"
	ActivityEventRoleChanged          ActivityEventType = "account.role.changed"
	ActivityEventPasswordChanged      ActivityEventType = "account.password.changed"
	ActivityEventPasswordResetSuccess ActivityEventType = "account.password.reset"
	ActivityEventEmailChanged         ActivityEventType = "account.email.changed"
	ActivityEventProvisioned          ActivityEventType = "account.provisioned"
	ActivityEventDeleted              ActivityEventType = "account.deleted"
)

// ActorRef identifies who/what triggered an action.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType    ActivityEventType
	Actor        ActorRef
	UserID       string
	FromStanding Standing
	ToStanding   Standing
	Metadata     map[string]any
	OccurredAt   time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
