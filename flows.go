package accounts

import (
	"context"
	"time"
)

// Flows bundles the collaborators every flow handler needs: repositories,
// token issuer, gate, state machine, password hashing, and the out-of-band
// notifier. Build one and share it across handlers.
type Flows struct {
	repo     RepositoryManager
	issuer   *TokenIssuer
	machine  *StateMachine
	gate     *Gate
	auth     PasswordAuthenticator
	notifier Notifier
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// FlowsOption customizes flow construction.
type FlowsOption func(*Flows)

// WithFlowsLogger overrides the default logger.
func WithFlowsLogger(logger Logger) FlowsOption {
	return func(f *Flows) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithFlowsClock injects a custom clock shared by the issuer and state machine.
func WithFlowsClock(clock func() time.Time) FlowsOption {
	return func(f *Flows) {
		if clock != nil {
			f.now = clock
		}
	}
}

// WithFlowsNotifier sets the out-of-band token notifier.
func WithFlowsNotifier(n Notifier) FlowsOption {
	return func(f *Flows) {
		if n != nil {
			f.notifier = n
		}
	}
}

// WithFlowsActivitySink sets the sink that receives lifecycle events.
func WithFlowsActivitySink(sink ActivitySink) FlowsOption {
	return func(f *Flows) {
		if sink != nil {
			f.activity = sink
		}
	}
}

// WithFlowsPasswordAuthenticator overrides the default bcrypt authenticator.
func WithFlowsPasswordAuthenticator(auth PasswordAuthenticator) FlowsOption {
	return func(f *Flows) {
		if auth != nil {
			f.auth = auth
		}
	}
}

// NewFlows wires the default collaborators over the given repository manager.
func NewFlows(repo RepositoryManager, opts ...FlowsOption) *Flows {
	f := &Flows{
		repo:     repo,
		auth:     NewPasswordAuthenticator(),
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}

	f.notifier = normalizeNotifier(f.notifier, f.logger)

	f.issuer = NewTokenIssuer(repo.Tokens(),
		WithTokenClock(f.now),
		WithTokenLogger(f.logger),
	)

	f.machine = NewStateMachine(repo.Users(),
		WithStateMachineClock(f.now),
		WithStateMachineActivitySink(f.activity),
		WithStateMachineLogger(f.logger),
	)

	f.gate = NewGate(repo.Users(), f.issuer, WithGateLogger(f.logger))

	return f
}

// Issuer exposes the token issuer, for transports that need direct access.
func (f *Flows) Issuer() *TokenIssuer {
	return f.issuer
}

// Gate exposes the authentication gate.
func (f *Flows) Gate() *Gate {
	return f.gate
}

// StateMachine exposes the account state machine.
func (f *Flows) StateMachine() *StateMachine {
	return f.machine
}

func (f *Flows) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = f.now()
	}

	if err := f.activity.Record(ctx, event); err != nil {
		f.logger.Warn("activity sink error for %s: %v", event.EventType, err)
	}
}

func (f *Flows) notifyToken(ctx context.Context, user *User, token *Token) {
	if err := f.notifier.NotifyToken(ctx, user, token); err != nil {
		f.logger.Error("token notification failed for %s: %v", user.Email, err)
	}
}
