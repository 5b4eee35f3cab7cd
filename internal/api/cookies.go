package api

import (
	"net/http"
	"time"

	"vidtube/internal/constants"
	"vidtube/internal/session"
)

type cookieWriter struct {
	secure bool
	domain string
}

func (c cookieWriter) setTokens(w http.ResponseWriter, pair session.TokenPair) {
	http.SetCookie(w, c.cookie(constants.AccessTokenCookie, pair.AccessToken, pair.AccessTokenExpiresAt))
	http.SetCookie(w, c.cookie(constants.RefreshTokenCookie, pair.RefreshToken, pair.RefreshTokenExpiresAt))
}

func (c cookieWriter) clearTokens(w http.ResponseWriter) {
	for _, name := range []string{constants.AccessTokenCookie, constants.RefreshTokenCookie} {
		cookie := c.cookie(name, "", time.Unix(0, 0))
		cookie.MaxAge = -1
		http.SetCookie(w, cookie)
	}
}

func (c cookieWriter) cookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.domain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
