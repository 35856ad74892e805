package accounts_test

import (
	"context"
	"net/http"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type jsonCapture struct {
	code int
	body map[string]any
}

// newJSONContext wires a MockContext that binds the given payload and
// captures whatever the handler writes back.
func newJSONContext(bind func(target any), capture *jsonCapture) *MockContext {
	ctx := &MockContext{}
	ctx.On("Context").Return(context.Background()).Maybe()
	ctx.On("Bind", mock.Anything).
		Run(func(args mock.Arguments) {
			if bind != nil {
				bind(args.Get(0))
			}
		}).
		Return(nil).Maybe()
	ctx.On("JSON", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			capture.code = args.Int(0)
			capture.body, _ = args.Get(1).(map[string]any)
		}).
		Return(nil)
	return ctx
}

func TestHTTPSignup(t *testing.T) {
	h := newTestHarness(t)
	controller := accounts.NewHTTPController(h.flows, accounts.HTTPConfig{})

	var out jsonCapture
	ctx := newJSONContext(func(target any) {
		payload := target.(*accounts.SignupRequest)
		payload.Email = "ada@example.com"
		payload.Password = "longenough1"
	}, &out)

	err := controller.Signup(ctx)
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, out.code)
	assert.Contains(t, out.body, "user")
	assert.Contains(t, out.body, "expires_at")
	// the confirmation token only travels out-of-band
	assert.NotContains(t, out.body, "token")
}

func TestHTTPSignupValidation(t *testing.T) {
	h := newTestHarness(t)
	controller := accounts.NewHTTPController(h.flows, accounts.HTTPConfig{})

	var out jsonCapture
	ctx := newJSONContext(nil, &out)

	err := controller.Signup(ctx)
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, out.code)
	assert.Equal(t, accounts.TextCodeValidationFailed, out.body["text_code"])

	msgs, ok := out.body["messages"].([]string)
	require.True(t, ok)
	assert.Contains(t, msgs, "email: cannot be blank")
	assert.Contains(t, msgs, "password: cannot be blank")
}

func TestHTTPLogin(t *testing.T) {
	h := newTestHarness(t)
	controller := accounts.NewHTTPController(h.flows, accounts.HTTPConfig{})
	h.registerVerified(t, "ada@example.com", "longenough1")

	t.Run("returns the session token", func(t *testing.T) {
		var out jsonCapture
		ctx := newJSONContext(func(target any) {
			payload := target.(*accounts.LoginRequest)
			payload.Email = "ada@example.com"
			payload.Password = "longenough1"
		}, &out)

		err := controller.Login(ctx)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, out.code)
		token, _ := out.body["token"].(string)
		assert.Len(t, token, 50)
	})

	t.Run("wrong password maps to 401", func(t *testing.T) {
		var out jsonCapture
		ctx := newJSONContext(func(target any) {
			payload := target.(*accounts.LoginRequest)
			payload.Email = "ada@example.com"
			payload.Password = "wrong"
		}, &out)

		err := controller.Login(ctx)
		require.NoError(t, err)

		assert.Equal(t, http.StatusUnauthorized, out.code)
		assert.Equal(t, accounts.TextCodeInvalidCreds, out.body["text_code"])
	})
}

func TestHTTPLogoutUsesBearerHeader(t *testing.T) {
	h := newTestHarness(t)
	controller := accounts.NewHTTPController(h.flows, accounts.HTTPConfig{})
	h.registerVerified(t, "ada@example.com", "longenough1")
	login := h.login(t, "ada@example.com", "longenough1")

	var out jsonCapture
	ctx := newJSONContext(nil, &out)
	ctx.On("Header", "Authorization").Return("Bearer " + login.Token.Value)

	err := controller.Logout(ctx)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, out.code)
	assert.Equal(t, true, out.body["success"])

	_, err = h.flows.Gate().Authenticate(context.Background(), login.Token.Value)
	assert.ErrorIs(t, err, accounts.ErrUnauthorized)
}

func TestHTTPMeFallsBackToCookie(t *testing.T) {
	h := newTestHarness(t)
	controller := accounts.NewHTTPController(h.flows, accounts.HTTPConfig{})
	h.registerVerified(t, "ada@example.com", "longenough1")
	login := h.login(t, "ada@example.com", "longenough1")

	var out jsonCapture
	ctx := newJSONContext(nil, &out)
	ctx.On("Header", "Authorization").Return("")
	ctx.On("Cookies", "session").Return(login.Token.Value)

	err := controller.Me(ctx)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, out.code)
	user, ok := out.body["user"].(*accounts.User)
	require.True(t, ok)
	assert.Equal(t, "ada@example.com", user.Email)
}

func TestRequestPayloadValidation(t *testing.T) {
	tests := []struct {
		name    string
		payload interface{ Validate() error }
		wantErr bool
	}{
		{
			name:    "valid signup",
			payload: accounts.SignupRequest{Email: "a@example.com", Password: "longenough1"},
		},
		{
			name:    "signup with a malformed email",
			payload: accounts.SignupRequest{Email: "nope", Password: "longenough1"},
			wantErr: true,
		},
		{
			name:    "valid login",
			payload: accounts.LoginRequest{Email: "a@example.com", Password: "x"},
		},
		{
			name:    "login without password",
			payload: accounts.LoginRequest{Email: "a@example.com"},
			wantErr: true,
		},
		{
			name:    "operate with a known action",
			payload: accounts.OperateUserRequest{Action: accounts.OperateSuspend},
		},
		{
			name:    "operate with an unknown action",
			payload: accounts.OperateUserRequest{Action: "obliterate"},
			wantErr: true,
		},
		{
			name: "provision with a known role",
			payload: accounts.ProvisionUserRequest{
				Email:    "a@example.com",
				Password: "longenough1",
				Role:     accounts.RoleAdmin,
			},
		},
		{
			name: "provision with an unknown role",
			payload: accounts.ProvisionUserRequest{
				Email:    "a@example.com",
				Password: "longenough1",
				Role:     "overlord",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFormatValidationErrors(t *testing.T) {
	t.Run("flattens and sorts field errors", func(t *testing.T) {
		err := accounts.SignupRequest{}.Validate()
		require.Error(t, err)

		msgs := accounts.FormatValidationErrors(err)
		assert.Equal(t, []string{
			"email: cannot be blank",
			"password: cannot be blank",
		}, msgs)
	})

	t.Run("nil error yields nothing", func(t *testing.T) {
		assert.Nil(t, accounts.FormatValidationErrors(nil))
	})
}
