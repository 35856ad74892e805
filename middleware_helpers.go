package accounts

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// MiddlewareConfig controls credential extraction and the context key the
// authenticated user is stored under.
type MiddlewareConfig struct {
	// AuthScheme stripped from the Authorization header (default: "Bearer")
	AuthScheme string

	// CookieName checked when no Authorization header is present (default: "session")
	CookieName string

	// ContextKey under which the *User is stored in router locals (default: "user")
	ContextKey string

	// ErrorHandler handles authentication failures (optional)
	ErrorHandler func(ctx router.Context, err error) error
}

func (c *MiddlewareConfig) defaults() {
	if c.AuthScheme == "" {
		c.AuthScheme = "Bearer"
	}
	if c.CookieName == "" {
		c.CookieName = "session"
	}
	if c.ContextKey == "" {
		c.ContextKey = "user"
	}
}

// ProtectedRoute re-validates the session token on every request and stores
// the account in both the router locals and the request context. A revoked
// token or a suspension takes effect on the very next call.
func ProtectedRoute(g *Gate, cfg MiddlewareConfig) router.MiddlewareFunc {
	cfg.defaults()

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			user, err := g.Authenticate(ctx.Context(), ExtractCredential(ctx, cfg))
			if err != nil {
				return middlewareError(ctx, cfg, err)
			}

			ctx.Locals(cfg.ContextKey, user)
			ctx.SetContext(WithContext(ctx.Context(), user))
			return hf(ctx)
		}
	}
}

// AdminRoute is ProtectedRoute plus the admin role requirement.
func AdminRoute(g *Gate, cfg MiddlewareConfig) router.MiddlewareFunc {
	cfg.defaults()

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			user, err := g.RequireAdmin(ctx.Context(), ExtractCredential(ctx, cfg))
			if err != nil {
				return middlewareError(ctx, cfg, err)
			}

			ctx.Locals(cfg.ContextKey, user)
			ctx.SetContext(WithContext(ctx.Context(), user))
			return hf(ctx)
		}
	}
}

// ExtractCredential pulls the session token from the Authorization header,
// falling back to the configured cookie.
func ExtractCredential(ctx router.Context, cfg MiddlewareConfig) string {
	header := ctx.Header("Authorization")
	if header != "" {
		scheme := cfg.AuthScheme + " "
		if strings.HasPrefix(header, scheme) {
			return strings.TrimSpace(strings.TrimPrefix(header, scheme))
		}
		return strings.TrimSpace(header)
	}

	return ctx.Cookies(cfg.CookieName)
}

func middlewareError(ctx router.Context, cfg MiddlewareConfig, err error) error {
	if cfg.ErrorHandler != nil {
		return cfg.ErrorHandler(ctx, err)
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryAuth, "authentication failed").
			WithCode(goerrors.CodeUnauthorized)
	}

	return ctx.JSON(richErr.Code, map[string]any{
		"error":     richErr.Message,
		"text_code": richErr.TextCode,
	})
}
