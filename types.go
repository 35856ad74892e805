package accounts

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity is the minimal read-only view of an account exposed to transports.
type Identity interface {
	ID() string
	Username() string
	Email() string
	Role() string
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// Notifier delivers token values to account holders through an out-of-band
// channel (email, SMS). The flows only hand over the value; delivery is not
// this package's concern.
type Notifier interface {
	NotifyToken(ctx context.Context, user *User, token *Token) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, user *User, token *Token) error

func (f NotifierFunc) NotifyToken(ctx context.Context, user *User, token *Token) error {
	if f == nil {
		return nil
	}
	return f(ctx, user, token)
}

type logNotifier struct {
	logger Logger
}

func (n logNotifier) NotifyToken(_ context.Context, user *User, token *Token) error {
	n.logger.Info("token notification for %s: type=%s expires=%s", user.Email, token.Type, token.ExpiresAt)
	return nil
}

func normalizeNotifier(n Notifier, logger Logger) Notifier {
	if n != nil {
		return n
	}
	if logger == nil {
		logger = defLogger{}
	}
	return logNotifier{logger: logger}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] ACCOUNTS "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
