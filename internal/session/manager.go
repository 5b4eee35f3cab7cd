package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vidtube/internal/apperr"
	"vidtube/internal/auth"
	"vidtube/internal/db"
	"vidtube/internal/models"
)

const staleTokenMessage = "Refresh token is expired or used"

type TokenPair struct {
	AccessToken           string    `json:"accessToken"`
	RefreshToken          string    `json:"refreshToken"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}

type LoginInput struct {
	Username  string
	Email     string
	Password  string
	UserAgent string
	IPAddress string
}

type LoginResult struct {
	User      *models.User
	SessionID string
	Tokens    TokenPair
}

type RefreshResult struct {
	User      *models.User
	SessionID string
	Tokens    TokenPair
}

// SessionInfo is a live session as shown to its owner.
type SessionInfo struct {
	models.Session
	Current bool `json:"current"`
}

type Manager struct {
	users    UserStore
	sessions SessionStore
	tokens   *auth.TokenIssuer
	notifier SessionNotifier
	mailer   PasswordNotifier
	now      func() time.Time
}

func NewManager(users UserStore, sessions SessionStore, tokens *auth.TokenIssuer) *Manager {
	return &Manager{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		now:      time.Now,
	}
}

func (m *Manager) SetSessionNotifier(notifier SessionNotifier) {
	m.notifier = notifier
}

func (m *Manager) SetPasswordNotifier(mailer PasswordNotifier) {
	m.mailer = mailer
}

// Login verifies credentials and opens a new session. Username takes
// precedence over email when both are given.
func (m *Manager) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	username := strings.ToLower(strings.TrimSpace(in.Username))
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if username == "" && email == "" {
		return nil, apperr.Validation("Username or email is required")
	}
	if in.Password == "" {
		return nil, apperr.Validation("Password is required")
	}

	creds, err := m.users.FindCredentialsByLogin(ctx, username, email)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("User does not exist")
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("looking up credentials: %w", err))
	}

	if !auth.VerifyPassword(in.Password, creds.PasswordHash) {
		return nil, apperr.New(apperr.KindInvalidCredentials, "Invalid user credentials")
	}

	sessionID, err := db.NewSessionID()
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("generating session ID: %w", err))
	}

	pair, err := m.issuePair(creds.UserID, sessionID)
	if err != nil {
		return nil, err
	}

	err = m.sessions.Create(ctx, &models.Session{
		ID:               sessionID,
		UserID:           creds.UserID,
		RefreshTokenHash: auth.HashToken(pair.RefreshToken),
		UserAgent:        truncate(in.UserAgent, 512),
		IPAddress:        in.IPAddress,
		CreatedAt:        m.now().UTC(),
		ExpiresAt:        pair.RefreshTokenExpiresAt,
	})
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("creating session: %w", err))
	}

	user, err := m.users.FindByID(ctx, creds.UserID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("loading user: %w", err))
	}

	slog.Info("user logged in", "user_id", user.ID, "session_id", sessionID)

	return &LoginResult{User: user, SessionID: sessionID, Tokens: *pair}, nil
}

// Refresh exchanges a refresh token for a new pair on the same session. The
// presented token must be the one the session currently stores. A superseded
// token is treated as a replay and revokes the whole session, so both the
// thief and the owner have to log in again.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if refreshToken == "" {
		return nil, apperr.Unauthorized("Unauthorized request")
	}

	claims, err := m.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrTokenExpired):
			return nil, apperr.New(apperr.KindExpired, "Refresh token has expired")
		case errors.Is(err, auth.ErrSigningKeyMissing):
			return nil, apperr.Internal(err)
		default:
			return nil, apperr.Wrap(apperr.KindTokenInvalid, "Invalid refresh token", err)
		}
	}

	userID := claims.UserID()
	user, err := m.users.FindByID(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("User does not exist")
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("loading user: %w", err))
	}

	presentedHash := auth.HashToken(refreshToken)
	sess, err := m.sessions.FindByID(ctx, claims.SessionID)
	if errors.Is(err, db.ErrNotFound) {
		m.logStale(userID, claims.SessionID, "session not found")
		return nil, apperr.New(apperr.KindTokenStale, staleTokenMessage)
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("loading session: %w", err))
	}

	switch {
	case sess.UserID != userID:
		m.logStale(userID, sess.ID, "session belongs to another user")
		return nil, apperr.New(apperr.KindTokenStale, staleTokenMessage)
	case !sess.Active(m.now()):
		m.logStale(userID, sess.ID, "session is not active")
		return nil, apperr.New(apperr.KindTokenStale, staleTokenMessage)
	case subtle.ConstantTimeCompare([]byte(presentedHash), []byte(sess.RefreshTokenHash)) != 1:
		m.logStale(userID, sess.ID, "refresh token superseded")
		m.revokeReplayed(ctx, userID, sess.ID)
		return nil, apperr.New(apperr.KindTokenStale, staleTokenMessage)
	}

	pair, err := m.issuePair(userID, sess.ID)
	if err != nil {
		return nil, err
	}

	err = m.sessions.Rotate(ctx, sess.ID, userID, presentedHash, auth.HashToken(pair.RefreshToken), pair.RefreshTokenExpiresAt)
	if errors.Is(err, db.ErrNotFound) {
		m.logStale(userID, sess.ID, "lost rotation race")
		return nil, apperr.New(apperr.KindTokenStale, staleTokenMessage)
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("rotating session: %w", err))
	}

	return &RefreshResult{User: user, SessionID: sess.ID, Tokens: *pair}, nil
}

// Logout revokes one session. Revoking a session that is already gone or
// revoked is not an error.
func (m *Manager) Logout(ctx context.Context, userID, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	revoked, err := m.sessions.Revoke(ctx, sessionID, userID)
	if err != nil {
		return apperr.Internal(fmt.Errorf("revoking session: %w", err))
	}
	if revoked {
		m.notifyRevoked(userID, []string{sessionID})
		slog.Info("user logged out", "user_id", userID, "session_id", sessionID)
	}
	return nil
}

// LogoutByRefreshToken revokes the session a refresh token is bound to. It
// lets a client whose access token already expired still end its session.
func (m *Manager) LogoutByRefreshToken(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return apperr.Unauthorized("Unauthorized request")
	}
	claims, err := m.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrSigningKeyMissing) {
			return apperr.Internal(err)
		}
		return apperr.Wrap(apperr.KindUnauthorized, "Invalid refresh token", err)
	}
	return m.Logout(ctx, claims.UserID(), claims.SessionID)
}

// RequireActiveSession fails Unauthorized unless sessionID is a live session
// owned by userID.
func (m *Manager) RequireActiveSession(ctx context.Context, userID, sessionID string) error {
	sess, err := m.sessions.FindByID(ctx, sessionID)
	if errors.Is(err, db.ErrNotFound) {
		return apperr.Unauthorized("Session is no longer active")
	}
	if err != nil {
		return apperr.Internal(fmt.Errorf("loading session: %w", err))
	}
	if sess.UserID != userID || !sess.Active(m.now()) {
		return apperr.Unauthorized("Session is no longer active")
	}
	return nil
}

// LogoutAll revokes every session of the user and returns how many were live.
func (m *Manager) LogoutAll(ctx context.Context, userID string) (int, error) {
	ids, err := m.sessions.RevokeAllForUser(ctx, userID, "")
	if err != nil {
		return 0, apperr.Internal(fmt.Errorf("revoking sessions: %w", err))
	}
	m.notifyRevoked(userID, ids)
	slog.Info("user logged out everywhere", "user_id", userID, "sessions", len(ids))
	return len(ids), nil
}

// ChangePassword replaces the password after checking the old one and
// revokes every other session of the user. currentSessionID stays valid.
func (m *Manager) ChangePassword(ctx context.Context, userID, currentSessionID, oldPassword, newPassword string) error {
	if oldPassword == "" || strings.TrimSpace(newPassword) == "" {
		return apperr.Validation("Old and new passwords are required")
	}

	creds, err := m.users.FindCredentialsByID(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return apperr.NotFound("User does not exist")
	}
	if err != nil {
		return apperr.Internal(fmt.Errorf("looking up credentials: %w", err))
	}

	if !auth.VerifyPassword(oldPassword, creds.PasswordHash) {
		return apperr.New(apperr.KindInvalidCredentials, "Invalid old password")
	}

	if err := m.setPassword(ctx, userID, newPassword, currentSessionID); err != nil {
		return err
	}

	m.sendPasswordNotice(ctx, userID)
	return nil
}

// ResetPassword sets a new password without the old one and revokes every
// session of the user.
func (m *Manager) ResetPassword(ctx context.Context, userID, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return apperr.Validation("New password is required")
	}
	if _, err := m.users.FindCredentialsByID(ctx, userID); errors.Is(err, db.ErrNotFound) {
		return apperr.NotFound("User does not exist")
	} else if err != nil {
		return apperr.Internal(fmt.Errorf("looking up credentials: %w", err))
	}

	if err := m.setPassword(ctx, userID, newPassword, ""); err != nil {
		return err
	}

	m.sendPasswordNotice(ctx, userID)
	return nil
}

func (m *Manager) ListSessions(ctx context.Context, userID, currentSessionID string) ([]SessionInfo, error) {
	sessions, err := m.sessions.ListActiveForUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("listing sessions: %w", err))
	}

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, SessionInfo{Session: s, Current: s.ID == currentSessionID})
	}
	return infos, nil
}

func (m *Manager) setPassword(ctx context.Context, userID, newPassword, keepSessionID string) error {
	hash, err := auth.HashPassword(newPassword)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return apperr.Validation("Password must be at most 72 bytes")
	}
	if err != nil {
		return apperr.Internal(err)
	}

	if err := m.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return apperr.NotFound("User does not exist")
		}
		return apperr.Internal(fmt.Errorf("updating password: %w", err))
	}

	ids, err := m.sessions.RevokeAllForUser(ctx, userID, keepSessionID)
	if err != nil {
		return apperr.Internal(fmt.Errorf("revoking sessions: %w", err))
	}
	m.notifyRevoked(userID, ids)

	slog.Info("password changed", "user_id", userID, "revoked_sessions", len(ids))
	return nil
}

func (m *Manager) issuePair(userID, sessionID string) (*TokenPair, error) {
	access, accessExp, err := m.tokens.IssueAccessToken(userID, sessionID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("issuing access token: %w", err))
	}
	refresh, refreshExp, err := m.tokens.IssueRefreshToken(userID, sessionID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("issuing refresh token: %w", err))
	}
	return &TokenPair{
		AccessToken:           access,
		RefreshToken:          refresh,
		AccessTokenExpiresAt:  accessExp.UTC(),
		RefreshTokenExpiresAt: refreshExp.UTC(),
	}, nil
}

func (m *Manager) notifyRevoked(userID string, sessionIDs []string) {
	if m.notifier == nil || len(sessionIDs) == 0 {
		return
	}
	m.notifier.RevokeSessions(userID, sessionIDs)
}

func (m *Manager) sendPasswordNotice(ctx context.Context, userID string) {
	if m.mailer == nil {
		return
	}
	user, err := m.users.FindByID(ctx, userID)
	if err != nil {
		slog.Warn("error loading user for password notice", "user_id", userID, "error", err)
		return
	}
	if err := m.mailer.SendPasswordChanged(user.Email, user.Username, m.now()); err != nil {
		slog.Error("error sending password change notice", "user_id", userID, "error", err)
	}
}

// revokeReplayed ends a session whose old refresh token came back. Failures
// are logged; the caller already answers TokenStale.
func (m *Manager) revokeReplayed(ctx context.Context, userID, sessionID string) {
	revoked, err := m.sessions.Revoke(ctx, sessionID, userID)
	if err != nil {
		slog.Error("error revoking replayed session", "user_id", userID, "session_id", sessionID, "error", err)
		return
	}
	if revoked {
		m.notifyRevoked(userID, []string{sessionID})
	}
}

func (m *Manager) logStale(userID, sessionID, reason string) {
	slog.Warn("rejected stale refresh token", "user_id", userID, "session_id", sessionID, "reason", reason)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
