package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"vidtube/internal/apperr"
	"vidtube/internal/auth"
	"vidtube/internal/db"
	"vidtube/internal/models"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	User      *models.User
	SessionID string
}

// Guard authenticates access tokens. It never writes to the store.
type Guard struct {
	tokens *auth.TokenIssuer
	users  UserStore
	cache  IdentityCache
}

func NewGuard(tokens *auth.TokenIssuer, users UserStore) *Guard {
	return &Guard{tokens: tokens, users: users}
}

func (g *Guard) SetIdentityCache(cache IdentityCache) {
	g.cache = cache
}

// Authenticate validates an access token and loads its identity. Every token
// or identity failure surfaces as Unauthorized.
func (g *Guard) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, apperr.Unauthorized("Unauthorized request")
	}

	claims, err := g.tokens.VerifyAccessToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrSigningKeyMissing) {
			return nil, apperr.Internal(err)
		}
		slog.Debug("rejected access token", "error", err)
		return nil, apperr.Wrap(apperr.KindUnauthorized, "Invalid access token", err)
	}

	user, err := g.loadUser(ctx, claims.UserID())
	if err != nil {
		return nil, err
	}

	return &Principal{User: user, SessionID: claims.SessionID}, nil
}

func (g *Guard) loadUser(ctx context.Context, userID string) (*models.User, error) {
	if g.cache != nil {
		if user, ok := g.cache.Get(ctx, userID); ok {
			return user, nil
		}
	}

	user, err := g.users.FindByID(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.Unauthorized("Invalid access token")
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("loading user: %w", err))
	}

	if g.cache != nil {
		g.cache.Set(ctx, user)
	}
	return user, nil
}
