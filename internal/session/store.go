package session

import (
	"context"
	"time"

	"vidtube/internal/models"
)

// UserStore is the identity side of the credential store.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindCredentialsByLogin(ctx context.Context, username, email string) (*models.Credentials, error)
	FindCredentialsByID(ctx context.Context, id string) (*models.Credentials, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}

type SessionStore interface {
	Create(ctx context.Context, s *models.Session) error
	FindByID(ctx context.Context, id string) (*models.Session, error)
	Rotate(ctx context.Context, id, userID, oldHash, newHash string, expiresAt time.Time) error
	Revoke(ctx context.Context, id, userID string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID, exceptID string) ([]string, error)
	ListActiveForUser(ctx context.Context, userID string) ([]models.Session, error)
}

// IdentityCache holds user projections for the guard. Misses and cache
// errors both fall through to the store.
type IdentityCache interface {
	Get(ctx context.Context, userID string) (*models.User, bool)
	Set(ctx context.Context, user *models.User)
	Delete(ctx context.Context, userID string)
}

// SessionNotifier is told about revoked sessions so live connections bound
// to them can be closed.
type SessionNotifier interface {
	RevokeSessions(userID string, sessionIDs []string)
}

type PasswordNotifier interface {
	SendPasswordChanged(to, username string, changedAt time.Time) error
}
