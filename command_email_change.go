package accounts

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// InitiateEmailChangeMessage starts an email change for a logged-in account.
// The target address is staged on the issued token and only becomes the
// account email once the token is confirmed.
type InitiateEmailChangeMessage struct {
	Credential string `json:"credential" doc:"Session token value."`
	NewEmail   string `json:"new_email" example:"pepe.rone@example.com" doc:"Replacement email address."`
	OnResponse func(resp *InitiateEmailChangeResponse)
}

func (m InitiateEmailChangeMessage) Type() string { return "account.email_change" }

type InitiateEmailChangeResponse struct {
	Token   *Token
	Success bool
}

type InitiateEmailChangeHandler struct {
	flows *Flows
}

func NewInitiateEmailChangeHandler(flows *Flows) *InitiateEmailChangeHandler {
	return &InitiateEmailChangeHandler{flows: flows}
}

func (h *InitiateEmailChangeHandler) Execute(ctx context.Context, event InitiateEmailChangeMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email change initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitiateEmailChangeHandler) execute(ctx context.Context, event InitiateEmailChangeMessage) error {
	resp := &InitiateEmailChangeResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.flows.gate.Authenticate(ctx, event.Credential)
	if err != nil {
		return err
	}

	if msgs := ValidateEmail(event.NewEmail); len(msgs) > 0 {
		return NewValidationError(msgs)
	}

	email := strings.TrimSpace(strings.ToLower(event.NewEmail))

	existing, err := h.flows.repo.Users().GetByEmail(ctx, email)
	if err != nil && !goerrors.IsNotFound(err) {
		return WrapInternal(err, "failed to check email availability")
	}
	if existing != nil && existing.ID != user.ID {
		return ErrEmailTaken
	}

	token, err := h.flows.issuer.Issue(ctx, user.ID, TokenEmailChange, &PendingUpdate{
		Email: email,
	})
	if err != nil {
		return err
	}

	h.flows.notifyToken(ctx, user, token)

	resp.Token = token
	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

// ConfirmEmailChangeMessage applies the staged email after validating and
// consuming the change token. Availability is re-checked at apply time since
// another account may have claimed the address while the token was in flight.
type ConfirmEmailChangeMessage struct {
	Credential string `json:"credential" doc:"Session token value."`
	Token      string `json:"token" doc:"Email change token value."`
	OnResponse func(resp *ConfirmEmailChangeResponse)
}

func (m ConfirmEmailChangeMessage) Type() string { return "account.email_change.confirm" }

type ConfirmEmailChangeResponse struct {
	User    *User
	Success bool
}

type ConfirmEmailChangeHandler struct {
	flows *Flows
}

func NewConfirmEmailChangeHandler(flows *Flows) *ConfirmEmailChangeHandler {
	return &ConfirmEmailChangeHandler{flows: flows}
}

func (h *ConfirmEmailChangeHandler) Execute(ctx context.Context, event ConfirmEmailChangeMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email change confirmation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmEmailChangeHandler) execute(ctx context.Context, event ConfirmEmailChangeMessage) error {
	resp := &ConfirmEmailChangeResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.flows.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.flows.gate.AuthenticateTx(ctx, tx, event.Credential)
		if err != nil {
			return err
		}

		token, err := h.flows.issuer.ValidateTx(ctx, tx, event.Token, TokenEmailChange)
		if err != nil {
			return err
		}

		if token.UserID != user.ID {
			return ErrTokenNotFound
		}

		if err := h.flows.issuer.ConsumeTx(ctx, tx, token); err != nil {
			return err
		}

		actor := ActorRef{ID: user.ID.String(), Type: "user"}
		resp.User, err = h.flows.machine.RotateEmail(ctx, tx, actor, user, token.PendingEmail)
		return err
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "email change transaction failed")
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
