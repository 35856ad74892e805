package accounts

import (
	"net/http"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Delete(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPConfig configures the JSON controller.
type HTTPConfig struct {
	// AuthScheme stripped from the Authorization header (default: "Bearer")
	AuthScheme string

	// CookieName checked when no Authorization header is present (default: "session")
	CookieName string

	Debug bool

	// ErrorHandler handles errors (optional)
	ErrorHandler func(ctx router.Context, err error) error
}

// HTTPController exposes every account flow as a JSON endpoint.
type HTTPController struct {
	flows  *Flows
	config HTTPConfig
	logger Logger
}

// NewHTTPController creates the JSON controller over the given flows.
func NewHTTPController(flows *Flows, cfg HTTPConfig) *HTTPController {
	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "session"
	}

	return &HTTPController{
		flows:  flows,
		config: cfg,
		logger: flows.logger,
	}
}

// RegisterRoutes registers the account routes on the given group.
func (c *HTTPController) RegisterRoutes(group RouteRegistrar) {
	group.Post("/signup", c.Signup)
	group.Post("/signup/confirm", c.ConfirmSignup)
	group.Post("/login", c.Login)
	group.Post("/logout", c.Logout)
	group.Post("/logout/all", c.LogoutAll)
	group.Get("/me", c.Me)
	group.Post("/password/change", c.InitiatePasswordChange)
	group.Post("/password/change/confirm", c.ConfirmPasswordChange)
	group.Post("/password/reset", c.InitiatePasswordReset)
	group.Post("/password/reset/confirm", c.ConfirmPasswordReset)
	group.Post("/email/change", c.InitiateEmailChange)
	group.Post("/email/change/confirm", c.ConfirmEmailChange)
	group.Get("/admin/users", c.ListUsers)
	group.Get("/admin/users/:id", c.GetUser)
	group.Post("/admin/users", c.ProvisionUser)
	group.Post("/admin/users/:id/operate", c.OperateUser)
	group.Delete("/admin/users/:id", c.DeleteUser)
}

// SignupRequest payload
type SignupRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r SignupRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (c *HTTPController) Signup(ctx router.Context) error {
	payload := new(SignupRequest)
	if err := ctx.Bind(payload); err != nil {
		return c.handleError(ctx, wrapBindError(err))
	}

	if err := payload.Validate(); err != nil {
		return c.handleError(ctx, NewValidationError(FormatValidationErrors(err)))
	}

	if c.config.Debug {
		c.logger.Debug("signup payload: %s", print.MaybePrettyJSON(payload))
	}

	var res *SignupResponse
	handler := NewSignupHandler(c.flows)
	err := handler.Execute(ctx.Context(), SignupMessage{
		Email:    payload.Email,
		Username: payload.Username,
		Password: payload.Password,
		OnResponse: func(resp *SignupResponse) {
			res = resp
		},
	})
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, map[string]any{
		"user": res.User,
		// the token value travels out-of-band; only expiry is echoed back
		"expires_at": res.Token.ExpiresAt,
	})
}

// ConfirmTokenRequest carries a bare token value.
type ConfirmTokenRequest struct {
	Token string `json:"token"`
}

// Validate will run validation rules
func (r ConfirmTokenRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

func (c *HTTPController) ConfirmSignup(ctx router.Context) error {
	payload := new(ConfirmTokenRequest)
	if err := ctx.Bind(payload); err != nil {
		return c.handleError(ctx, wrapBindError(err))
	}

	if err := payload.Validate(); err != nil {
		return c.handleError(ctx, NewValidationError(FormatValidationErrors(err)))
	}

	var res *ConfirmSignupResponse
	handler := NewConfirmSignupHandler(c.flows)
	err := handler.Execute(ctx.Context(), ConfirmSignupMessage{
		Token: payload.Token,
		OnResponse: func(resp *ConfirmSignupResponse) {
			res = resp
		},
	})
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"user": res.User,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (c *HTTPController) Login(ctx router.Context) error {
	payload := new(LoginRequest)
	if err := ctx.Bind(payload); err != nil {
		return c.handleError(ctx, wrapBindError(err))
	}

	if err := payload.Validate(); err != nil {
		return c.handleError(ctx, NewValidationError(FormatValidationErrors(err)))
	}

	var res *LoginResponse
	handler := NewLoginHandler(c.flows)
	err := handler.Execute(ctx.Context(), LoginMessage{
		Email:    payload.Email,
		Password: payload.Password,
		OnResponse: func(resp *LoginResponse) {
			res = resp
		},
	})
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"user":       res.User,
		"token":      res.Token.Value,
		"expires_at": res.Token.ExpiresAt,
	})
}

func (c *HTTPController) Logout(ctx router.Context) error {
	handler := NewLogoutHandler(c.flows)
	err := handler.Execute(ctx.Context(), LogoutMessage{
		Credential: c.credential(ctx),
	})
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
	})
}

func (c *HTTPController) LogoutAll(ctx router.Context) error {
	var res *LogoutResponse
	handler := NewLogoutAllHandler(c.flows)
	err := handler.Execute(ctx.Context(), LogoutAllMessage{
		Credential: c.credential(ctx),
		OnResponse: func(resp *LogoutResponse) {
			res = resp
		},
	})
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
		"revoked": res.Revoked,
	})
}

func (c *HTTPController) Me(ctx router.Context) error {
	user, err := c.flows.gate.Authenticate(ctx.Context(), c.credential(ctx))
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"user": user,
	})
}

// PasswordChangeRequest payload
type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate will run validation rules
func (r PasswordChangeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required),
		validation.Field(&r.ConfirmPassword, validation.Required),
	)
}

func (c *HTTPController) InitiatePasswordChange(ctx router.Context) error {
	payload := new(PasswordChangeRequest)
	if err := ctx.Bind(payload); err != nil {
		return c.handleError(ctx, wrapBindError(err))
	}

	if err := payload.Validate(); err != nil {
		return c.handleError(ctx, NewValidationError(FormatValidationErrors(err)))
	}

	var res *InitiatePasswordChangeResponse
	handler := NewInitiatePasswordChangeHandler(c.flows)
	err := handler.Execute(ctx.Context(), InitiatePasswordChangeMessage{
		Credential:      c.credential(ctx),
		CurrentPassword: payload.CurrentPassword,
		NewPassword:     payload.NewPassword,
		ConfirmPassword: payload.ConfirmPassword,
		OnResponse: func(resp *InitiatePasswordChangeResponse) {
			res = resp
		},
	})
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"expires_at": res.Token.ExpiresAt,
	})
}

func (c *HTTPController) ConfirmPasswordChange(ctx router.Context) error {
	payload := new(ConfirmTokenRequest)
	if err := ctx.Bind(payload); err != nil {
		return c.handleError(ctx, wrapBindError(err))
	}

	if err := payload.Validate(); err != nil {
		return c.handleError(ctx, NewValidationError(FormatValidationErrors(err)))
	}

	handler := NewConfirmPasswordChangeHandler(c.flows)
	err := handler.Execute(ctx.Context(), ConfirmPasswordChangeMessage{
		Credential: c.credential(ctx),
		Token:      payload.Token,
	})
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
	})
}

// PasswordResetRequest payload
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// Validate will run validation rules
func (r PasswordResetRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (c *HTTPController) InitiatePasswordReset(ctx router.Context) error {
	payload := new(PasswordResetRequest)
	if err := ctx.Bind(payload); err != nil {
		return c.handleError(ctx, wrapBindError(err))
	}

	if err := payload.Validate(); err != nil {
		return c.handleError(ctx, NewValidationError(FormatValidationErrors(err)))
	}

	var res *InitiatePasswordResetResponse
	handler := NewInitiatePasswordResetHandler(c.flows)
	err := handler.Execute(ctx.Context(), InitiatePasswordResetMessage{
		Email: payload.Email,
		OnResponse: func(resp *InitiatePasswordResetResponse) {
			res = resp
		},
	})
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"expires_at": res.Token.ExpiresAt,
	})
}

// PasswordResetConfirmRequest payload
type PasswordResetConfirmRequest struct {
	Token           string `json:"token"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate will run validation rules
func (r PasswordResetConfirmRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.NewPassword, validation.Required),
		validation.Field(&r.ConfirmPassword, validation.Required),
	)
}

func (c *HTTPController) ConfirmPasswordReset(ctx router.Context) error {
	payload := new(PasswordResetConfirmRequest)
	if err := ctx.Bind(payload); err != nil {
		return c.handleError(ctx, wrapBindError(err))
	}

	if err := payload.Validate(); err != nil {
		return c.handleError(ctx, NewValidationError(FormatValidationErrors(err)))
	}

	handler := NewConfirmPasswordResetHandler(c.flows)
	err := handler.Execute(ctx.Context(), ConfirmPasswordResetMessage{
		Token:           payload.Token,
		NewPassword:     payload.NewPassword,
		ConfirmPassword: payload.ConfirmPassword,
	})
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
	})
}

// EmailChangeRequest payload
type EmailChangeRequest struct {
	NewEmail string `json:"new_email"`
}

// Validate will run validation rules
func (r EmailChangeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.NewEmail, validation.Required, is.Email),
	)
}

func (c *HTTPController) InitiateEmailChange(ctx router.Context) error {
	payload := new(EmailChangeRequest)
	if err := ctx.Bind(payload); err != nil {
		return c.handleError(ctx, wrapBindError(err))
	}

	if err := payload.Validate(); err != nil {
		return c.handleError(ctx, NewValidationError(FormatValidationErrors(err)))
	}

	var res *InitiateEmailChangeResponse
	handler := NewInitiateEmailChangeHandler(c.flows)
	err := handler.Execute(ctx.Context(), InitiateEmailChangeMessage{
		Credential: c.credential(ctx),
		NewEmail:   payload.NewEmail,
		OnResponse: func(resp *InitiateEmailChangeResponse) {
			res = resp
		},
	})
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"expires_at": res.Token.ExpiresAt,
	})
}

func (c *HTTPController) ConfirmEmailChange(ctx router.Context) error {
	payload := new(ConfirmTokenRequest)
	if err := ctx.Bind(payload); err != nil {
		return c.handleError(ctx, wrapBindError(err))
	}

	if err := payload.Validate(); err != nil {
		return c.handleError(ctx, NewValidationError(FormatValidationErrors(err)))
	}

	var res *ConfirmEmailChangeResponse
	handler := NewConfirmEmailChangeHandler(c.flows)
	err := handler.Execute(ctx.Context(), ConfirmEmailChangeMessage{
		Credential: c.credential(ctx),
		Token:      payload.Token,
		OnResponse: func(resp *ConfirmEmailChangeResponse) {
			res = resp
		},
	})
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"user": res.User,
	})
}

// ProvisionUserRequest payload
type ProvisionUserRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Validate will run validation rules
func (r ProvisionUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.Role, validation.In(RoleUser, RoleAdmin)),
	)
}

func (c *HTTPController) ProvisionUser(ctx router.Context) error {
	payload := new(ProvisionUserRequest)
	if err := ctx.Bind(payload); err != nil {
		return c.handleError(ctx, wrapBindError(err))
	}

	if err := payload.Validate(); err != nil {
		return c.handleError(ctx, NewValidationError(FormatValidationErrors(err)))
	}

	var res *ProvisionUserResponse
	handler := NewProvisionUserHandler(c.flows)
	err := handler.Execute(ctx.Context(), ProvisionUserMessage{
		Credential: c.credential(ctx),
		Email:      payload.Email,
		Username:   payload.Username,
		Password:   payload.Password,
		Role:       payload.Role,
		OnResponse: func(resp *ProvisionUserResponse) {
			res = resp
		},
	})
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, map[string]any{
		"user": res.User,
	})
}

// OperateUserRequest payload
type OperateUserRequest struct {
	Action string `json:"action"`
}

// Validate will run validation rules
func (r OperateUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Action, validation.Required, validation.In(
			OperateSuspend,
			OperateUnsuspend,
			OperateDemote,
		)),
	)
}

func (c *HTTPController) OperateUser(ctx router.Context) error {
	payload := new(OperateUserRequest)
	if err := ctx.Bind(payload); err != nil {
		return c.handleError(ctx, wrapBindError(err))
	}

	if err := payload.Validate(); err != nil {
		return c.handleError(ctx, NewValidationError(FormatValidationErrors(err)))
	}

	var res *OperateUserResponse
	handler := NewOperateUserHandler(c.flows)
	err := handler.Execute(ctx.Context(), OperateUserMessage{
		Credential: c.credential(ctx),
		UserID:     ctx.Param("id", ""),
		Action:     payload.Action,
		OnResponse: func(resp *OperateUserResponse) {
			res = resp
		},
	})
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"user": res.User,
	})
}

func (c *HTTPController) DeleteUser(ctx router.Context) error {
	handler := NewDeleteUserHandler(c.flows)
	err := handler.Execute(ctx.Context(), DeleteUserMessage{
		Credential: c.credential(ctx),
		UserID:     ctx.Param("id", ""),
	})
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
	})
}

func (c *HTTPController) GetUser(ctx router.Context) error {
	var res *GetUserResponse
	handler := NewGetUserHandler(c.flows)
	err := handler.Execute(ctx.Context(), GetUserMessage{
		Credential: c.credential(ctx),
		UserID:     ctx.Param("id", ""),
		OnResponse: func(resp *GetUserResponse) {
			res = resp
		},
	})
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"user": res.User,
	})
}

func (c *HTTPController) ListUsers(ctx router.Context) error {
	var res *ListUsersResponse
	handler := NewListUsersHandler(c.flows)
	err := handler.Execute(ctx.Context(), ListUsersMessage{
		Credential: c.credential(ctx),
		OnResponse: func(resp *ListUsersResponse) {
			res = resp
		},
	})
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"users": res.Users,
	})
}

// credential pulls the session token from the Authorization header, falling
// back to the session cookie.
func (c *HTTPController) credential(ctx router.Context) string {
	header := ctx.Header("Authorization")
	if header != "" {
		scheme := c.config.AuthScheme + " "
		if strings.HasPrefix(header, scheme) {
			return strings.TrimSpace(strings.TrimPrefix(header, scheme))
		}
		return strings.TrimSpace(header)
	}

	return ctx.Cookies(c.config.CookieName)
}

func (c *HTTPController) handleError(ctx router.Context, err error) error {
	if c.config.ErrorHandler != nil {
		return c.config.ErrorHandler(ctx, err)
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	c.logger.Warn(
		"request error: %s category=%s text_code=%s",
		richErr.Message, richErr.Category, richErr.TextCode,
	)

	status := richErr.Code
	if status == 0 {
		status = http.StatusInternalServerError
	}

	body := map[string]any{
		"error":     richErr.Message,
		"text_code": richErr.TextCode,
	}

	if msgs := ValidationMessages(richErr); len(msgs) > 0 {
		body["messages"] = msgs
	}

	return ctx.JSON(status, body)
}

func wrapBindError(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse request body").
		WithCode(goerrors.CodeBadRequest)
}

// FormatValidationErrors flattens an ozzo validation error into per-field
// messages.
func FormatValidationErrors(err error) []string {
	if err == nil {
		return nil
	}

	verrs, ok := err.(validation.Errors)
	if !ok {
		return []string{err.Error()}
	}

	out := make([]string, 0, len(verrs))
	for field, ferr := range verrs {
		out = append(out, field+": "+ferr.Error())
	}
	sort.Strings(out)
	return out
}
