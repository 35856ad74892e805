package accounts_test

import (
	"context"
	"io"
	"mime/multipart"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// MockUsers implements accounts.Users
type MockUsers struct {
	mock.Mock
}

func (m *MockUsers) GetByID(ctx context.Context, id uuid.UUID) (*accounts.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*accounts.User)
	return user, args.Error(1)
}

func (m *MockUsers) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*accounts.User, error) {
	args := m.Called(ctx, tx, id)
	user, _ := args.Get(0).(*accounts.User)
	return user, args.Error(1)
}

func (m *MockUsers) GetByEmail(ctx context.Context, email string) (*accounts.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*accounts.User)
	return user, args.Error(1)
}

func (m *MockUsers) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*accounts.User, error) {
	args := m.Called(ctx, tx, email)
	user, _ := args.Get(0).(*accounts.User)
	return user, args.Error(1)
}

func (m *MockUsers) Register(ctx context.Context, record *accounts.User) (*accounts.User, error) {
	args := m.Called(ctx, record)
	user, _ := args.Get(0).(*accounts.User)
	return user, args.Error(1)
}

func (m *MockUsers) RegisterTx(ctx context.Context, tx bun.IDB, record *accounts.User) (*accounts.User, error) {
	args := m.Called(ctx, tx, record)
	user, _ := args.Get(0).(*accounts.User)
	return user, args.Error(1)
}

func (m *MockUsers) Update(ctx context.Context, record *accounts.User) (*accounts.User, error) {
	args := m.Called(ctx, record)
	user, _ := args.Get(0).(*accounts.User)
	return user, args.Error(1)
}

func (m *MockUsers) UpdateTx(ctx context.Context, tx bun.IDB, record *accounts.User) (*accounts.User, error) {
	args := m.Called(ctx, tx, record)
	user, _ := args.Get(0).(*accounts.User)
	return user, args.Error(1)
}

func (m *MockUsers) DeleteByID(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockUsers) DeleteByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func (m *MockUsers) ListAll(ctx context.Context) ([]*accounts.User, error) {
	args := m.Called(ctx)
	users, _ := args.Get(0).([]*accounts.User)
	return users, args.Error(1)
}

func (m *MockUsers) ListAllTx(ctx context.Context, tx bun.IDB) ([]*accounts.User, error) {
	args := m.Called(ctx, tx)
	users, _ := args.Get(0).([]*accounts.User)
	return users, args.Error(1)
}

// MockTokens implements accounts.Tokens
type MockTokens struct {
	mock.Mock
}

func (m *MockTokens) GetByValue(ctx context.Context, value string) (*accounts.Token, error) {
	args := m.Called(ctx, value)
	token, _ := args.Get(0).(*accounts.Token)
	return token, args.Error(1)
}

func (m *MockTokens) GetByValueTx(ctx context.Context, tx bun.IDB, value string) (*accounts.Token, error) {
	args := m.Called(ctx, tx, value)
	token, _ := args.Get(0).(*accounts.Token)
	return token, args.Error(1)
}

func (m *MockTokens) Create(ctx context.Context, record *accounts.Token) (*accounts.Token, error) {
	args := m.Called(ctx, record)
	token, _ := args.Get(0).(*accounts.Token)
	return token, args.Error(1)
}

func (m *MockTokens) CreateTx(ctx context.Context, tx bun.IDB, record *accounts.Token) (*accounts.Token, error) {
	args := m.Called(ctx, tx, record)
	token, _ := args.Get(0).(*accounts.Token)
	return token, args.Error(1)
}

func (m *MockTokens) DeleteByID(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTokens) DeleteByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func (m *MockTokens) DeleteAllByOwnerAndType(ctx context.Context, ownerID uuid.UUID, typ accounts.TokenType) (int64, error) {
	args := m.Called(ctx, ownerID, typ)
	return int64(args.Int(0)), args.Error(1)
}

func (m *MockTokens) DeleteAllByOwnerAndTypeTx(ctx context.Context, tx bun.IDB, ownerID uuid.UUID, typ accounts.TokenType) (int64, error) {
	args := m.Called(ctx, tx, ownerID, typ)
	return int64(args.Int(0)), args.Error(1)
}

func (m *MockTokens) DeleteAllByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	args := m.Called(ctx, ownerID)
	return int64(args.Int(0)), args.Error(1)
}

func (m *MockTokens) DeleteAllByOwnerTx(ctx context.Context, tx bun.IDB, ownerID uuid.UUID) (int64, error) {
	args := m.Called(ctx, tx, ownerID)
	return int64(args.Int(0)), args.Error(1)
}

// capturingSink records activity events for assertions.
type capturingSink struct {
	events []accounts.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt accounts.ActivityEvent) error {
	c.events = append(c.events, evt)
	return nil
}

// MockContext mocks the router.Context
type MockContext struct {
	mock.Mock
	NextCalled bool
}

func (m *MockContext) Next() error {
	m.NextCalled = true
	return nil
}

func (m *MockContext) Context() context.Context {
	args := m.Called()
	c, ok := args.Get(0).(context.Context)
	if !ok {
		panic("arg needs to be context.Context")
	}
	return c
}

func (m *MockContext) SetContext(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockContext) Path() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Method() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Body() []byte {
	args := m.Called()
	return args.Get(0).([]byte)
}

func (m *MockContext) Status(code int) router.Context {
	m.Called(code)
	return m
}

func (m *MockContext) SendString(s string) error {
	args := m.Called(s)
	return args.Error(0)
}

func (m *MockContext) Send(b []byte) error {
	args := m.Called(b)
	return args.Error(0)
}

func (m *MockContext) JSON(code int, val any) error {
	args := m.Called(code, val)
	return args.Error(0)
}

func (m *MockContext) NoContent(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) Render(name string, bind any, layout ...string) error {
	if len(layout) > 0 {
		args := m.Called(name, bind, layout[0])
		return args.Error(0)
	}
	args := m.Called(name, bind)
	return args.Error(0)
}

func (m *MockContext) Redirect(path string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(path, status)
		return args.Error(0)
	}
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockContext) RedirectToRoute(name string, data router.ViewContext, status ...int) error {
	if len(status) > 0 {
		args := m.Called(name, data, status[0])
		return args.Error(0)
	}
	args := m.Called(name, data)
	return args.Error(0)
}

func (m *MockContext) RedirectBack(fallback string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(fallback, status)
		return args.Error(0)
	}
	args := m.Called(fallback)
	return args.Error(0)
}

func (m *MockContext) SetHeader(key, val string) router.Context {
	m.Called(key, val)
	return m
}

func (m *MockContext) Header(key string) string {
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Get(key string, defaultValue any) any {
	args := m.Called(key, defaultValue)
	return args.Get(0)
}

func (m *MockContext) GetBool(key string, defaultValue bool) bool {
	args := m.Called(key, defaultValue)
	return args.Bool(0)
}

func (m *MockContext) GetInt(key string, def int) int {
	args := m.Called(key, def)
	return args.Int(0)
}

func (m *MockContext) Set(key string, val any) {
	m.Called(key, val)
}

func (m *MockContext) Bind(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindJSON(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindXML(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindQuery(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) CookieParser(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) Cookie(cookie *router.Cookie) {
	m.Called(cookie)
}

func (m *MockContext) Cookies(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Param(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) ParamsInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Query(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) QueryValues(key string) []string {
	args := m.Called(key)
	vals, _ := args.Get(0).([]string)
	return vals
}

func (m *MockContext) QueryInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Queries() map[string]string {
	args := m.Called()
	return args.Get(0).(map[string]string)
}

func (m *MockContext) GetString(key string, defaultValue string) string {
	args := m.Called(key, defaultValue)
	return args.String(0)
}

func (m *MockContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		m.Called(key, value[0])
		return nil
	}
	args := m.Called(key)
	return args.Get(0)
}

func (m *MockContext) OriginalURL() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) OnNext(callback func() error) {
	m.Called(callback)
}

func (m *MockContext) Referer() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) LocalsMerge(key any, value map[string]any) map[string]any {
	args := m.Called(key, value)
	merged, _ := args.Get(0).(map[string]any)
	return merged
}

func (m *MockContext) FormFile(key string) (*multipart.FileHeader, error) {
	args := m.Called(key)
	header, _ := args.Get(0).(*multipart.FileHeader)
	return header, args.Error(1)
}

func (m *MockContext) FormValue(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) IP() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) SendStatus(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) SendStream(r io.Reader) error {
	args := m.Called(r)
	return args.Error(0)
}

func (m *MockContext) RouteName() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) RouteParams() map[string]string {
	args := m.Called()
	params, _ := args.Get(0).(map[string]string)
	return params
}
