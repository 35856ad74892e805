package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProvisionUserMessage lets an admin create a verified account directly with
// an explicit role, bypassing the signup confirmation step. Re-provisioning
// an existing email refreshes that account instead of failing.
type ProvisionUserMessage struct {
	Credential string `json:"credential" doc:"Admin session token value."`
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	Username   string `json:"username" doc:"Display name, defaults to the email local part."`
	Password   string `json:"password" doc:"Plaintext password, hashed before storage."`
	Role       string `json:"role" example:"user" doc:"Role for the new account."`
	OnResponse func(resp *ProvisionUserResponse)
}

func (m ProvisionUserMessage) Type() string { return "account.admin.provision" }

type ProvisionUserResponse struct {
	User    *User
	Success bool
}

type ProvisionUserHandler struct {
	flows *Flows
}

func NewProvisionUserHandler(flows *Flows) *ProvisionUserHandler {
	return &ProvisionUserHandler{flows: flows}
}

func (h *ProvisionUserHandler) Execute(ctx context.Context, event ProvisionUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account provisioning",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ProvisionUserHandler) execute(ctx context.Context, event ProvisionUserMessage) error {
	resp := &ProvisionUserResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	admin, err := h.flows.gate.RequireAdmin(ctx, event.Credential)
	if err != nil {
		return err
	}

	msgs := ValidateEmail(event.Email)
	msgs = append(msgs, ValidatePassword("password", event.Password)...)
	if event.Role != "" && !IsValidRole(event.Role) {
		msgs = append(msgs, "role must be one of: user, admin")
	}
	if len(msgs) > 0 {
		return NewValidationError(msgs)
	}

	role := event.Role
	if role == "" {
		role = RoleUser
	}

	err = h.flows.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := h.flows.auth.HashPassword(event.Password)
		if err != nil {
			return WrapInternal(err, "failed to hash password")
		}

		existing, err := h.flows.repo.Users().GetByEmailTx(ctx, tx, event.Email)
		if err != nil && !goerrors.IsNotFound(err) {
			return WrapInternal(err, "failed to look up account for provisioning")
		}

		if existing == nil {
			next, err := TransitionProvision(User{
				Email:        event.Email,
				Username:     getUsername(event.Username, event.Email),
				PasswordHash: hash,
			}, role)
			if err != nil {
				return err
			}

			resp.User, err = h.flows.repo.Users().RegisterTx(ctx, tx, &next)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create account")
			}
			return nil
		}

		next, err := TransitionProvision(existing.Snapshot(), role)
		if err != nil {
			return err
		}
		next.Username = getUsername(event.Username, event.Email)
		next.PasswordHash = hash

		resp.User, err = h.flows.repo.Users().UpdateTx(ctx, tx, &next)
		return err
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account provisioning transaction failed")
	}

	h.flows.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventProvisioned,
		Actor:     ActorRef{ID: admin.ID.String(), Type: "admin"},
		UserID:    resp.User.ID.String(),
		Metadata:  map[string]any{"role": resp.User.Role},
	})

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

const (
	// OperateSuspend blocks the account from every gated operation
	OperateSuspend = "suspend"
	// OperateUnsuspend lifts a suspension
	OperateUnsuspend = "unsuspend"
	// OperateDemote strips the admin role
	OperateDemote = "demote"
)

// OperateUserMessage applies one named admin action to a target account.
type OperateUserMessage struct {
	Credential string `json:"credential" doc:"Admin session token value."`
	UserID     string `json:"user_id" doc:"Target account identifier."`
	Action     string `json:"action" example:"suspend" doc:"One of suspend, unsuspend, demote."`
	OnResponse func(resp *OperateUserResponse)
}

func (m OperateUserMessage) Type() string { return "account.admin.operate" }

type OperateUserResponse struct {
	User    *User
	Success bool
}

type OperateUserHandler struct {
	flows *Flows
}

func NewOperateUserHandler(flows *Flows) *OperateUserHandler {
	return &OperateUserHandler{flows: flows}
}

func (h *OperateUserHandler) Execute(ctx context.Context, event OperateUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account operation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *OperateUserHandler) execute(ctx context.Context, event OperateUserMessage) error {
	resp := &OperateUserResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	admin, err := h.flows.gate.RequireAdmin(ctx, event.Credential)
	if err != nil {
		return err
	}

	targetID, err := uuid.Parse(event.UserID)
	if err != nil {
		return goerrors.New("invalid account identifier", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"user_id": event.UserID})
	}

	err = h.flows.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		target, err := h.flows.repo.Users().GetByIDTx(ctx, tx, targetID)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrAccountNotFound
			}
			return WrapInternal(err, "failed to load account for operation")
		}

		actor := ActorRef{ID: admin.ID.String(), Type: "admin"}

		switch event.Action {
		case OperateSuspend:
			resp.User, err = h.flows.machine.Suspend(ctx, tx, actor, target)
		case OperateUnsuspend:
			resp.User, err = h.flows.machine.Reinstate(ctx, tx, actor, target)
		case OperateDemote:
			resp.User, err = h.flows.machine.Demote(ctx, tx, actor, target)
		default:
			return goerrors.New("unknown account operation", goerrors.CategoryBadInput).
				WithMetadata(map[string]any{"action": event.Action})
		}
		if err != nil {
			return err
		}

		// a suspended account loses its sessions immediately
		if event.Action == OperateSuspend {
			if _, err := h.flows.issuer.RevokeAllTx(ctx, tx, target.ID, TokenAuthed); err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account operation transaction failed")
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

// DeleteUserMessage removes the target account and every token it owns, in
// one transaction so tokens never outlive their account.
type DeleteUserMessage struct {
	Credential string `json:"credential" doc:"Admin session token value."`
	UserID     string `json:"user_id" doc:"Target account identifier."`
	OnResponse func(resp *DeleteUserResponse)
}

func (m DeleteUserMessage) Type() string { return "account.admin.delete" }

type DeleteUserResponse struct {
	Success bool
}

type DeleteUserHandler struct {
	flows *Flows
}

func NewDeleteUserHandler(flows *Flows) *DeleteUserHandler {
	return &DeleteUserHandler{flows: flows}
}

func (h *DeleteUserHandler) Execute(ctx context.Context, event DeleteUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account deletion",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *DeleteUserHandler) execute(ctx context.Context, event DeleteUserMessage) error {
	resp := &DeleteUserResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	admin, err := h.flows.gate.RequireAdmin(ctx, event.Credential)
	if err != nil {
		return err
	}

	targetID, err := uuid.Parse(event.UserID)
	if err != nil {
		return goerrors.New("invalid account identifier", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"user_id": event.UserID})
	}

	err = h.flows.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := h.flows.repo.Tokens().DeleteAllByOwnerTx(ctx, tx, targetID); err != nil {
			return WrapInternal(err, "failed to revoke tokens for deleted account")
		}

		if err := h.flows.repo.Users().DeleteByIDTx(ctx, tx, targetID); err != nil {
			if goerrors.IsNotFound(err) {
				return ErrAccountNotFound
			}
			return WrapInternal(err, "failed to delete account")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account deletion transaction failed")
	}

	h.flows.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventDeleted,
		Actor:     ActorRef{ID: admin.ID.String(), Type: "admin"},
		UserID:    targetID.String(),
	})

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

// GetUserMessage loads one account for an admin.
type GetUserMessage struct {
	Credential string `json:"credential" doc:"Admin session token value."`
	UserID     string `json:"user_id" doc:"Target account identifier."`
	OnResponse func(resp *GetUserResponse)
}

func (m GetUserMessage) Type() string { return "account.admin.get" }

type GetUserResponse struct {
	User    *User
	Success bool
}

type GetUserHandler struct {
	flows *Flows
}

func NewGetUserHandler(flows *Flows) *GetUserHandler {
	return &GetUserHandler{flows: flows}
}

func (h *GetUserHandler) Execute(ctx context.Context, event GetUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account lookup",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *GetUserHandler) execute(ctx context.Context, event GetUserMessage) error {
	resp := &GetUserResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if _, err := h.flows.gate.RequireAdmin(ctx, event.Credential); err != nil {
		return err
	}

	targetID, err := uuid.Parse(event.UserID)
	if err != nil {
		return goerrors.New("invalid account identifier", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"user_id": event.UserID})
	}

	user, err := h.flows.repo.Users().GetByID(ctx, targetID)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrAccountNotFound
		}
		return WrapInternal(err, "failed to load account")
	}

	resp.User = user
	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

// ListUsersMessage lists every account for an admin.
type ListUsersMessage struct {
	Credential string `json:"credential" doc:"Admin session token value."`
	OnResponse func(resp *ListUsersResponse)
}

func (m ListUsersMessage) Type() string { return "account.admin.list" }

type ListUsersResponse struct {
	Users   []*User
	Success bool
}

type ListUsersHandler struct {
	flows *Flows
}

func NewListUsersHandler(flows *Flows) *ListUsersHandler {
	return &ListUsersHandler{flows: flows}
}

func (h *ListUsersHandler) Execute(ctx context.Context, event ListUsersMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account listing",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ListUsersHandler) execute(ctx context.Context, event ListUsersMessage) error {
	resp := &ListUsersResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if _, err := h.flows.gate.RequireAdmin(ctx, event.Credential); err != nil {
		return err
	}

	users, err := h.flows.repo.Users().ListAll(ctx)
	if err != nil {
		return WrapInternal(err, "failed to list accounts")
	}

	resp.Users = users
	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
