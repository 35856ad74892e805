package accounts

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/hashicorp/go-secure-stdlib/base62"
	"github.com/uptrace/bun"
)

const (
	// sessionTokenLength is the length of Authed token values. Session
	// credentials are presented on every protected call, so they use the
	// wider base62 alphabet rather than hex.
	sessionTokenLength = 50
	// secretByteLength is the entropy of non-session token values,
	// rendered as hex (16 bytes -> 32 characters).
	secretByteLength = 16
	// maxValueAttempts bounds regeneration when a generated value collides
	// with a live token. The unique column enforces the invariant; the
	// retry keeps collisions invisible to callers.
	maxValueAttempts = 3
)

// TokenTTL returns the fixed time-to-live per token type. The TTL is set at
// issuance and never extended.
func TokenTTL(t TokenType) time.Duration {
	switch t {
	case TokenSignup:
		return 1 * time.Hour
	case TokenAuthed:
		return 5 * time.Hour
	case TokenPasswordChange, TokenEmailChange, TokenPasswordReset:
		return 2 * time.Hour
	default:
		return 0
	}
}

// PendingUpdate stages an account mutation on a token at issuance. It is
// applied only when the confirming flow validates and consumes the token.
type PendingUpdate struct {
	Email        string
	PasswordHash string
}

// TokenIssuer is the token engine: it mints purpose-scoped single-use
// tokens, validates presented values, and revokes them.
type TokenIssuer struct {
	tokens Tokens
	now    func() time.Time
	logger Logger
}

// TokenIssuerOption customizes TokenIssuer construction.
type TokenIssuerOption func(*TokenIssuer)

// WithTokenClock injects a custom clock (useful for tests).
func WithTokenClock(clock func() time.Time) TokenIssuerOption {
	return func(s *TokenIssuer) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithTokenLogger overrides the logger used by the issuer.
func WithTokenLogger(logger Logger) TokenIssuerOption {
	return func(s *TokenIssuer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewTokenIssuer returns a token engine backed by the given repository.
func NewTokenIssuer(tokens Tokens, opts ...TokenIssuerOption) *TokenIssuer {
	s := &TokenIssuer{
		tokens: tokens,
		now:    time.Now,
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Issue mints a token for the given owner and type. Expiry is fixed to
// now + TokenTTL(typ). An optional pending update is staged on the record.
func (s *TokenIssuer) Issue(ctx context.Context, ownerID uuid.UUID, typ TokenType, pending *PendingUpdate) (*Token, error) {
	return s.IssueTx(ctx, nil, ownerID, typ, pending)
}

// IssueTx is Issue inside an existing transaction.
func (s *TokenIssuer) IssueTx(ctx context.Context, tx bun.IDB, ownerID uuid.UUID, typ TokenType, pending *PendingUpdate) (*Token, error) {
	if !IsValidTokenType(typ) {
		return nil, goerrors.New("unknown token type", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"token_type": typ})
	}

	if ownerID == uuid.Nil {
		return nil, goerrors.New("token owner is required", goerrors.CategoryBadInput)
	}

	var lastErr error
	for attempt := 0; attempt < maxValueAttempts; attempt++ {
		value, err := tokenValue(typ)
		if err != nil {
			return nil, WrapInternal(err, "failed to generate token value")
		}

		record := &Token{
			Type:      typ,
			Value:     value,
			UserID:    ownerID,
			ExpiresAt: s.now().Add(TokenTTL(typ)),
		}
		if pending != nil {
			record.PendingEmail = pending.Email
			record.PendingPasswordHash = pending.PasswordHash
		}

		created, err := s.tokens.CreateTx(ctx, tx, record)
		if err == nil {
			return created, nil
		}
		if !isUniqueViolation(err) {
			return nil, WrapInternal(err, "failed to store token")
		}
		s.logger.Warn("token value collision, regenerating: type=%s attempt=%d", typ, attempt+1)
		lastErr = err
	}

	return nil, WrapInternal(lastErr, "exhausted token value generation attempts")
}

// Validate resolves a presented value to a live token of the expected type.
// The token is returned unconsumed; the caller decides when to consume it.
func (s *TokenIssuer) Validate(ctx context.Context, value string, expected TokenType) (*Token, error) {
	return s.ValidateTx(ctx, nil, value, expected)
}

// ValidateTx is Validate inside an existing transaction.
func (s *TokenIssuer) ValidateTx(ctx context.Context, tx bun.IDB, value string, expected TokenType) (*Token, error) {
	if value == "" {
		return nil, ErrTokenNotFound
	}

	token, err := s.tokens.GetByValueTx(ctx, tx, value)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrTokenNotFound
		}
		return nil, WrapInternal(err, "failed to look up token")
	}

	if token.Expired(s.now()) {
		return nil, ErrTokenExpired
	}

	if token.Type != expected {
		return nil, ErrInvalidTokenType
	}

	return token, nil
}

// Consume deletes the token. The delete is a single conditional statement,
// so of two racing confirmations exactly one consumes the token; the loser
// observes ErrTokenNotFound and must not apply the pending mutation.
func (s *TokenIssuer) Consume(ctx context.Context, token *Token) error {
	return s.ConsumeTx(ctx, nil, token)
}

// ConsumeTx is Consume inside an existing transaction.
func (s *TokenIssuer) ConsumeTx(ctx context.Context, tx bun.IDB, token *Token) error {
	if token == nil {
		return ErrTokenNotFound
	}

	if err := s.tokens.DeleteByIDTx(ctx, tx, token.ID); err != nil {
		if goerrors.IsNotFound(err) {
			return ErrTokenNotFound
		}
		return WrapInternal(err, "failed to consume token")
	}

	return nil
}

// RevokeAll deletes every token of the given owner and type. Used for
// "logout all devices", which revokes all Authed tokens for the account.
func (s *TokenIssuer) RevokeAll(ctx context.Context, ownerID uuid.UUID, typ TokenType) (int64, error) {
	return s.RevokeAllTx(ctx, nil, ownerID, typ)
}

// RevokeAllTx is RevokeAll inside an existing transaction.
func (s *TokenIssuer) RevokeAllTx(ctx context.Context, tx bun.IDB, ownerID uuid.UUID, typ TokenType) (int64, error) {
	n, err := s.tokens.DeleteAllByOwnerAndTypeTx(ctx, tx, ownerID, typ)
	if err != nil {
		return 0, WrapInternal(err, "failed to revoke tokens")
	}
	return n, nil
}

func tokenValue(typ TokenType) (string, error) {
	if typ == TokenAuthed {
		return base62.Random(sessionTokenLength)
	}

	buf := make([]byte, secretByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "duplicate key")
}
