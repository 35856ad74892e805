package accounts

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// SignupMessage starts the signup flow. The account is created pending; the
// issued token confirms it. Re-sending the signup for a still-pending email
// refreshes the pending credential instead of duplicating the account.
type SignupMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	Username   string `json:"username" example:"peperone" doc:"Display name, defaults to the email local part."`
	Password   string `json:"password" doc:"Plaintext password, hashed before storage."`
	UseHashid  bool   `json:"-" doc:"Derive the account ID deterministically from the email."`
	OnResponse func(resp *SignupResponse)
}

func (m SignupMessage) Type() string { return "account.signup" }

type SignupResponse struct {
	User    *User
	Token   *Token
	Success bool
}

type SignupHandler struct {
	flows *Flows
}

func NewSignupHandler(flows *Flows) *SignupHandler {
	return &SignupHandler{flows: flows}
}

func (h *SignupHandler) Execute(ctx context.Context, event SignupMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during signup",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *SignupHandler) execute(ctx context.Context, event SignupMessage) error {
	resp := &SignupResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	msgs := ValidateEmail(event.Email)
	msgs = append(msgs, ValidatePassword("password", event.Password)...)
	if len(msgs) > 0 {
		return NewValidationError(msgs)
	}

	err := h.flows.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := h.flows.auth.HashPassword(event.Password)
		if err != nil {
			return WrapInternal(err, "failed to hash password")
		}

		existing, err := h.flows.repo.Users().GetByEmailTx(ctx, tx, event.Email)
		if err != nil && !goerrors.IsNotFound(err) {
			return WrapInternal(err, "failed to look up account for signup")
		}

		var user *User
		switch {
		case existing == nil:
			record := &User{
				Email:        event.Email,
				Username:     getUsername(event.Username, event.Email),
				PasswordHash: hash,
			}
			if event.UseHashid {
				if id, err := hashid.NewUUID(event.Email); err == nil {
					record.ID = id
				}
			}
			user, err = h.flows.repo.Users().RegisterTx(ctx, tx, record)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create account")
			}
		case existing.IsVerified():
			return ErrEmailTaken
		default:
			// pending account: replace the staged credential and invalidate
			// any earlier confirmation token
			existing.Username = getUsername(event.Username, event.Email)
			existing.PasswordHash = hash
			user, err = h.flows.repo.Users().UpdateTx(ctx, tx, existing)
			if err != nil {
				return WrapInternal(err, "failed to refresh pending account")
			}
			if _, err := h.flows.issuer.RevokeAllTx(ctx, tx, user.ID, TokenSignup); err != nil {
				return err
			}
		}

		token, err := h.flows.issuer.IssueTx(ctx, tx, user.ID, TokenSignup, nil)
		if err != nil {
			return err
		}

		resp.User = user
		resp.Token = token
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "signup transaction failed")
	}

	h.flows.notifyToken(ctx, resp.User, resp.Token)
	h.flows.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventSignupRequested,
		Actor:     ActorRef{ID: resp.User.ID.String(), Type: "user"},
		UserID:    resp.User.ID.String(),
	})

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func getUsername(username, email string) string {
	if username != "" {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.Split(email, "@")[0]
	}

	return username
}
