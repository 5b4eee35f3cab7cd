package api

import (
	"errors"
	"net/http"
	"time"

	"vidtube/internal/apperr"
	"vidtube/internal/constants"
	"vidtube/internal/models"
	"vidtube/internal/session"
)

type AuthHandler struct {
	sessions *session.Manager
	guard    *session.Guard
	cookies  cookieWriter
	ips      *ClientIPResolver
}

func NewAuthHandler(sessions *session.Manager, guard *session.Guard, cookies cookieWriter, ips *ClientIPResolver) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		guard:    guard,
		cookies:  cookies,
		ips:      ips,
	}
}

// POST /api/v1/users/login
//
// UserName is the camel-cased spelling older clients send.
type LoginRequest struct {
	Username string `json:"username" validate:"required_without_all=UserName Email,max=64"`
	UserName string `json:"userName" validate:"max=64"`
	Email    string `json:"email" validate:"required_without_all=Username UserName,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

func (req LoginRequest) login() string {
	if req.Username != "" {
		return req.Username
	}
	return req.UserName
}

type AuthResponse struct {
	User                  *models.User `json:"user"`
	SessionID             string       `json:"sessionId"`
	AccessToken           string       `json:"accessToken"`
	RefreshToken          string       `json:"refreshToken"`
	AccessTokenExpiresAt  string       `json:"accessTokenExpiresAt"`
	RefreshTokenExpiresAt string       `json:"refreshTokenExpiresAt"`
}

func newAuthResponse(user *models.User, sessionID string, pair session.TokenPair) AuthResponse {
	return AuthResponse{
		User:                  user,
		SessionID:             sessionID,
		AccessToken:           pair.AccessToken,
		RefreshToken:          pair.RefreshToken,
		AccessTokenExpiresAt:  pair.AccessTokenExpiresAt.UTC().Format(time.RFC3339),
		RefreshTokenExpiresAt: pair.RefreshTokenExpiresAt.UTC().Format(time.RFC3339),
	}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.sessions.Login(r.Context(), session.LoginInput{
		Username:  req.login(),
		Email:     req.Email,
		Password:  req.Password,
		UserAgent: r.UserAgent(),
		IPAddress: h.ips.Resolve(r),
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	h.cookies.setTokens(w, result.Tokens)
	writeJSON(w, http.StatusOK, newAuthResponse(result.User, result.SessionID, result.Tokens))
}

// POST /api/v1/users/refresh-token
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, ok := h.refreshTokenFrom(w, r)
	if !ok {
		return
	}

	result, err := h.sessions.Refresh(r.Context(), token)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindTokenStale {
			h.cookies.clearTokens(w)
		}
		writeAppError(w, r, err)
		return
	}

	h.cookies.setTokens(w, result.Tokens)
	writeJSON(w, http.StatusOK, newAuthResponse(result.User, result.SessionID, result.Tokens))
}

// refreshTokenFrom prefers the refreshToken cookie and falls back to an
// optional JSON body.
func (h *AuthHandler) refreshTokenFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	if cookie, err := r.Cookie(constants.RefreshTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}

	if r.ContentLength == 0 {
		return "", true
	}

	var req RefreshRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		if errors.Is(err, errBodyTooLarge) {
			payloadTooLarge(w)
			return "", false
		}
		writeAppError(w, r, err)
		return "", false
	}
	return req.RefreshToken, true
}

// POST /api/v1/users/logout
//
// Logout is not behind RequireAuth: a client whose access token expired can
// still end its session with the refresh token. Cookies are cleared on every
// outcome.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.clearTokens(w)

	principal, err := h.guard.Authenticate(r.Context(), extractToken(r))
	switch {
	case err == nil:
		err = h.sessions.Logout(r.Context(), principal.User.ID, principal.SessionID)
	case apperr.KindOf(err) == apperr.KindUnauthorized:
		token, ok := h.refreshTokenFrom(w, r)
		if !ok {
			return
		}
		if token != "" {
			err = h.sessions.LogoutByRefreshToken(r.Context(), token)
		}
	}
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "User logged out"})
}

// POST /api/v1/users/logout-all
type LogoutAllResponse struct {
	Message         string `json:"message"`
	RevokedSessions int    `json:"revokedSessions"`
}

func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrFail(w, r)
	if !ok {
		return
	}

	count, err := h.sessions.LogoutAll(r.Context(), principal.User.ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	h.cookies.clearTokens(w)
	writeJSON(w, http.StatusOK, LogoutAllResponse{Message: "All sessions logged out", RevokedSessions: count})
}

// POST /api/v1/users/change-password
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required,max=72"`
	NewPassword string `json:"newPassword" validate:"required,max=72"`
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrFail(w, r)
	if !ok {
		return
	}

	var req ChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.sessions.ChangePassword(r.Context(), principal.User.ID, principal.SessionID, req.OldPassword, req.NewPassword)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password changed successfully"})
}

// GET /api/v1/users/sessions
func (h *AuthHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrFail(w, r)
	if !ok {
		return
	}

	sessions, err := h.sessions.ListSessions(r.Context(), principal.User.ID, principal.SessionID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []session.SessionInfo{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}
