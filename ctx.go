package accounts

import (
	"context"

	"github.com/goliatone/go-router"
)

var userCtxKey = &contextKey{"user"}

type contextKey struct {
	name string
}

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok
}

// GetRouterUser extracts the authenticated User from the router context
func GetRouterUser(ctx router.Context, key string) (*User, bool) {
	if key == "" {
		key = "user"
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	user, ok := raw.(*User)
	return user, ok
}

// IsAdminContext reports whether the context carries an admin account.
func IsAdminContext(ctx context.Context) bool {
	user, ok := FromContext(ctx)
	return ok && user.IsAdmin()
}
