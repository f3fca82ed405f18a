package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	domainerrors "github.com/shelflifeapp/shelflife/internal/errors"
)

// TokenSource supplies the bearer token for remote calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource always returns the same token.
type StaticTokenSource string

// Token implements TokenSource.
func (s StaticTokenSource) Token(context.Context) (string, error) {
	if s == "" {
		return "", domainerrors.Unauthorized("no access token configured")
	}
	return string(s), nil
}

// ParseClaims decodes a JWT without verifying its signature. The remote is
// the party that verifies tokens; locally the claims only name the user.
func ParseClaims(token string) (*AccessClaims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, fmt.Errorf("token is empty")
	}

	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return claims, nil
}

// Identity resolves the current user: an id placed in the context wins, then
// the subject of the access token, then the configured fallback.
type Identity struct {
	tokens   TokenSource
	fallback string

	mu     sync.Mutex
	cached string
	subj   string
}

// NewIdentity creates an Identity. tokens may be nil.
func NewIdentity(tokens TokenSource, fallbackUserID string) *Identity {
	return &Identity{tokens: tokens, fallback: fallbackUserID}
}

// CurrentUserID returns the id of the user on whose behalf ctx runs.
func (i *Identity) CurrentUserID(ctx context.Context) (string, error) {
	if userID, ok := UserIDFromContext(ctx); ok {
		return userID, nil
	}

	if i.tokens != nil {
		if token, err := i.tokens.Token(ctx); err == nil {
			if userID := i.subject(token); userID != "" {
				return userID, nil
			}
		}
	}

	if i.fallback != "" {
		return i.fallback, nil
	}
	return "", domainerrors.Unauthorized("no current user: configure an access token or a user id")
}

// subject parses token once and remembers its user.
func (i *Identity) subject(token string) string {
	i.mu.Lock()
	defer i.mu.Unlock()

	if token == i.cached {
		return i.subj
	}

	i.cached, i.subj = token, ""
	if claims, err := ParseClaims(token); err == nil {
		i.subj = claims.User()
	}
	return i.subj
}

// Expired reports whether the token's exp claim is before now. Tokens without
// an exp claim never expire.
func Expired(token string, now time.Time) bool {
	claims, err := ParseClaims(token)
	if err != nil || claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Before(now)
}

type ctxKey struct{}

// WithUserID returns a context that resolves to userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserIDFromContext returns the user id placed by WithUserID.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(ctxKey{}).(string)
	return userID, ok && userID != ""
}
