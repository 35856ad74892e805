package accounts

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// LogoutMessage revokes the single presented session token.
type LogoutMessage struct {
	Credential string `json:"credential" doc:"Session token value."`
	OnResponse func(resp *LogoutResponse)
}

func (m LogoutMessage) Type() string { return "account.logout" }

type LogoutResponse struct {
	User    *User
	Revoked int64
	Success bool
}

type LogoutHandler struct {
	flows *Flows
}

func NewLogoutHandler(flows *Flows) *LogoutHandler {
	return &LogoutHandler{flows: flows}
}

func (h *LogoutHandler) Execute(ctx context.Context, event LogoutMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during logout",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *LogoutHandler) execute(ctx context.Context, event LogoutMessage) error {
	resp := &LogoutResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.Credential == "" {
		return ErrUnauthorized
	}

	token, err := h.flows.issuer.Validate(ctx, event.Credential, TokenAuthed)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return ErrUnauthorized
		}
		return err
	}

	if err := h.flows.issuer.Consume(ctx, token); err != nil {
		if !errors.Is(err, ErrTokenNotFound) {
			return err
		}
		// someone else revoked it first, nothing left to do
	} else {
		resp.Revoked = 1
	}

	if user, err := h.flows.repo.Users().GetByID(ctx, token.UserID); err == nil {
		resp.User = user
	}

	h.flows.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventLogout,
		Actor:     ActorRef{ID: token.UserID.String(), Type: "user"},
		UserID:    token.UserID.String(),
	})

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

// LogoutAllMessage revokes every session token the account holds, on every
// device.
type LogoutAllMessage struct {
	Credential string `json:"credential" doc:"Session token value."`
	OnResponse func(resp *LogoutResponse)
}

func (m LogoutAllMessage) Type() string { return "account.logout.all" }

type LogoutAllHandler struct {
	flows *Flows
}

func NewLogoutAllHandler(flows *Flows) *LogoutAllHandler {
	return &LogoutAllHandler{flows: flows}
}

func (h *LogoutAllHandler) Execute(ctx context.Context, event LogoutAllMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during logout",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *LogoutAllHandler) execute(ctx context.Context, event LogoutAllMessage) error {
	resp := &LogoutResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.flows.gate.Authenticate(ctx, event.Credential)
	if err != nil {
		return err
	}

	revoked, err := h.flows.issuer.RevokeAll(ctx, user.ID, TokenAuthed)
	if err != nil {
		return err
	}

	h.flows.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventLogoutAll,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
		Metadata:  map[string]any{"revoked": revoked},
	})

	resp.User = user
	resp.Revoked = revoked
	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
