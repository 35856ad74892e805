package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// InitiatePasswordResetMessage starts an out-of-band password reset for a
// verified account the caller cannot log into. The token travels through the
// notifier; the new password arrives with the confirmation.
type InitiatePasswordResetMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	OnResponse func(resp *InitiatePasswordResetResponse)
}

func (m InitiatePasswordResetMessage) Type() string { return "account.password_reset" }

type InitiatePasswordResetResponse struct {
	Token   *Token
	Success bool
}

type InitiatePasswordResetHandler struct {
	flows *Flows
}

func NewInitiatePasswordResetHandler(flows *Flows) *InitiatePasswordResetHandler {
	return &InitiatePasswordResetHandler{flows: flows}
}

func (h *InitiatePasswordResetHandler) Execute(ctx context.Context, event InitiatePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitiatePasswordResetHandler) execute(ctx context.Context, event InitiatePasswordResetMessage) error {
	resp := &InitiatePasswordResetResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if msgs := ValidateEmail(event.Email); len(msgs) > 0 {
		return NewValidationError(msgs)
	}

	user, err := h.flows.repo.Users().GetByEmail(ctx, event.Email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrAccountNotFound
		}
		return WrapInternal(err, "failed to look up account for password reset")
	}

	// same response as no account so the reset endpoint does not confirm
	// which addresses are mid-signup
	if !user.IsVerified() {
		return ErrAccountNotFound
	}

	if user.IsSuspended() {
		return ErrAccountSuspended
	}

	token, err := h.flows.issuer.Issue(ctx, user.ID, TokenPasswordReset, nil)
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

// ConfirmPasswordResetMessage finishes the reset: the token proves control
// of the email inbox and the payload carries the replacement password.
type ConfirmPasswordResetMessage struct {
	Token           string `json:"token" doc:"Password reset token value."`
	NewPassword     string `json:"new_password" doc:"Replacement plaintext password."`
	ConfirmPassword string `json:"confirm_password" doc:"Replacement password repeated."`
	OnResponse      func(resp *ConfirmPasswordResetResponse)
}

func (m ConfirmPasswordResetMessage) Type() string { return "account.password_reset.confirm" }

type ConfirmPasswordResetResponse struct {
	User    *User
	Success bool
}

type ConfirmPasswordResetHandler struct {
	flows *Flows
}

func NewConfirmPasswordResetHandler(flows *Flows) *ConfirmPasswordResetHandler {
	return &ConfirmPasswordResetHandler{flows: flows}
}

func (h *ConfirmPasswordResetHandler) Execute(ctx context.Context, event ConfirmPasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset confirmation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmPasswordResetHandler) execute(ctx context.Context, event ConfirmPasswordResetMessage) error {
	resp := &ConfirmPasswordResetResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if msgs := ValidateNewPassword(event.NewPassword, event.ConfirmPassword); len(msgs) > 0 {
		return NewValidationError(msgs)
	}

	err := h.flows.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		token, err := h.flows.issuer.ValidateTx(ctx, tx, event.Token, TokenPasswordReset)
		if err != nil {
			return err
		}

		if err := h.flows.issuer.ConsumeTx(ctx, tx, token); err != nil {
			return err
		}

		user, err := h.flows.repo.Users().GetByIDTx(ctx, tx, token.UserID)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrAccountNotFound
			}
			return WrapInternal(err, "failed to load account for password reset")
		}

		hash, err := h.flows.auth.HashPassword(event.NewPassword)
		if err != nil {
			return WrapInternal(err, "failed to hash password")
		}

		actor := ActorRef{ID: user.ID.String(), Type: "user"}
		resp.User, err = h.flows.machine.RotateCredential(ctx, tx, actor, user, hash)
		return err
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "password reset transaction failed")
	}

	h.flows.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		Actor:     ActorRef{ID: resp.User.ID.String(), Type: "user"},
		UserID:    resp.User.ID.String(),
	})

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
