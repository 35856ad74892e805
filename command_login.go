package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// LoginMessage exchanges email and password for a session token. Login is a
// single-step flow: the issued token is the session credential.
type LoginMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	Password   string `json:"password" doc:"Plaintext password."`
	OnResponse func(resp *LoginResponse)
}

func (m LoginMessage) Type() string { return "account.login" }

type LoginResponse struct {
	User    *User
	Token   *Token
	Success bool
}

type LoginHandler struct {
	flows *Flows
}

func NewLoginHandler(flows *Flows) *LoginHandler {
	return &LoginHandler{flows: flows}
}

func (h *LoginHandler) Execute(ctx context.Context, event LoginMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during login",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *LoginHandler) execute(ctx context.Context, event LoginMessage) error {
	resp := &LoginResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.login(ctx, event)
	if err != nil {
		h.flows.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Actor:     ActorRef{Type: "anonymous"},
			Metadata:  map[string]any{"email": event.Email},
		})
		return err
	}

	token, err := h.flows.issuer.Issue(ctx, user.ID, TokenAuthed, nil)
	if err != nil {
		return err
	}

	h.flows.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
	})

	resp.User = user
	resp.Token = token
	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *LoginHandler) login(ctx context.Context, event LoginMessage) (*User, error) {
	if event.Email == "" || event.Password == "" {
		return nil, ErrMismatchedHashAndPassword
	}

	user, err := h.flows.repo.Users().GetByEmail(ctx, event.Email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			// same failure as a wrong password so responses do not reveal
			// which addresses have accounts
			return nil, ErrMismatchedHashAndPassword
		}
		return nil, WrapInternal(err, "failed to look up account for login")
	}

	if err := h.flows.auth.ComparePasswordAndHash(event.Password, user.PasswordHash); err != nil {
		return nil, ErrMismatchedHashAndPassword
	}

	if !user.IsVerified() {
		return nil, ErrAccountNotVerified
	}

	if user.IsSuspended() {
		return nil, ErrAccountSuspended
	}

	return user, nil
}
