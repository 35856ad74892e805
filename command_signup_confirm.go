package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// ConfirmSignupMessage finishes the signup flow: it validates and consumes
// the emailed confirmation token and marks the account verified.
type ConfirmSignupMessage struct {
	Token      string `json:"token" doc:"Signup confirmation token value."`
	OnResponse func(resp *ConfirmSignupResponse)
}

func (m ConfirmSignupMessage) Type() string { return "account.signup.confirm" }

type ConfirmSignupResponse struct {
	User    *User
	Success bool
}

type ConfirmSignupHandler struct {
	flows *Flows
}

func NewConfirmSignupHandler(flows *Flows) *ConfirmSignupHandler {
	return &ConfirmSignupHandler{flows: flows}
}

func (h *ConfirmSignupHandler) Execute(ctx context.Context, event ConfirmSignupMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during signup confirmation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmSignupHandler) execute(ctx context.Context, event ConfirmSignupMessage) error {
	resp := &ConfirmSignupResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.flows.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		token, err := h.flows.issuer.ValidateTx(ctx, tx, event.Token, TokenSignup)
		if err != nil {
			return err
		}

		// consume first: under a race on the same value only the caller whose
		// delete removed the row gets to apply the transition
		if err := h.flows.issuer.ConsumeTx(ctx, tx, token); err != nil {
			return err
		}

		user, err := h.flows.repo.Users().GetByIDTx(ctx, tx, token.UserID)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrAccountNotFound
			}
			return WrapInternal(err, "failed to load account for signup confirmation")
		}

		actor := ActorRef{ID: user.ID.String(), Type: "user"}
		resp.User, err = h.flows.machine.ConfirmSignup(ctx, tx, actor, user)
		return err
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "signup confirmation transaction failed")
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
