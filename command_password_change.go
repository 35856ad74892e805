package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// InitiatePasswordChangeMessage starts a password change for a logged-in
// account. The new hash is staged on the issued token and applied only when
// the token is confirmed.
type InitiatePasswordChangeMessage struct {
	Credential      string `json:"credential" doc:"Session token value."`
	CurrentPassword string `json:"current_password" doc:"Current plaintext password."`
	NewPassword     string `json:"new_password" doc:"Replacement plaintext password."`
	ConfirmPassword string `json:"confirm_password" doc:"Replacement password repeated."`
	OnResponse      func(resp *InitiatePasswordChangeResponse)
}

func (m InitiatePasswordChangeMessage) Type() string { return "account.password_change" }

type InitiatePasswordChangeResponse struct {
	Token   *Token
	Success bool
}

type InitiatePasswordChangeHandler struct {
	flows *Flows
}

func NewInitiatePasswordChangeHandler(flows *Flows) *InitiatePasswordChangeHandler {
	return &InitiatePasswordChangeHandler{flows: flows}
}

func (h *InitiatePasswordChangeHandler) Execute(ctx context.Context, event InitiatePasswordChangeMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password change initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitiatePasswordChangeHandler) execute(ctx context.Context, event InitiatePasswordChangeMessage) error {
	resp := &InitiatePasswordChangeResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.flows.gate.Authenticate(ctx, event.Credential)
	if err != nil {
		return err
	}

	// violations are collected, not fail-fast, so the caller sees every
	// problem at once
	msgs := ValidateNewPassword(event.NewPassword, event.ConfirmPassword)
	if err := h.flows.auth.ComparePasswordAndHash(event.CurrentPassword, user.PasswordHash); err != nil {
		msgs = append(msgs, "current password is incorrect")
	}
	if len(msgs) > 0 {
		return NewValidationError(msgs)
	}

	hash, err := h.flows.auth.HashPassword(event.NewPassword)
	if err != nil {
		return WrapInternal(err, "failed to hash password")
	}

	token, err := h.flows.issuer.Issue(ctx, user.ID, TokenPasswordChange, &PendingUpdate{
		PasswordHash: hash,
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

// ConfirmPasswordChangeMessage applies the staged password hash after
// validating and consuming the change token.
type ConfirmPasswordChangeMessage struct {
	Credential string `json:"credential" doc:"Session token value."`
	Token      string `json:"token" doc:"Password change token value."`
	OnResponse func(resp *ConfirmPasswordChangeResponse)
}

func (m ConfirmPasswordChangeMessage) Type() string { return "account.password_change.confirm" }

type ConfirmPasswordChangeResponse struct {
	User    *User
	Success bool
}

type ConfirmPasswordChangeHandler struct {
	flows *Flows
}

func NewConfirmPasswordChangeHandler(flows *Flows) *ConfirmPasswordChangeHandler {
	return &ConfirmPasswordChangeHandler{flows: flows}
}

func (h *ConfirmPasswordChangeHandler) Execute(ctx context.Context, event ConfirmPasswordChangeMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password change confirmation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmPasswordChangeHandler) execute(ctx context.Context, event ConfirmPasswordChangeMessage) error {
	resp := &ConfirmPasswordChangeResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.flows.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.flows.gate.AuthenticateTx(ctx, tx, event.Credential)
		if err != nil {
			return err
		}

		token, err := h.flows.issuer.ValidateTx(ctx, tx, event.Token, TokenPasswordChange)
		if err != nil {
			return err
		}

		// a change token is only good for the session owner that staged it
		if token.UserID != user.ID {
			return ErrTokenNotFound
		}

		if err := h.flows.issuer.ConsumeTx(ctx, tx, token); err != nil {
			return err
		}

		actor := ActorRef{ID: user.ID.String(), Type: "user"}
		resp.User, err = h.flows.machine.RotateCredential(ctx, tx, actor, user, token.PendingPasswordHash)
		return err
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "password change transaction failed")
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
