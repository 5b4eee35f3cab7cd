package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"vidtube/internal/apperr"
	"vidtube/internal/constants"
	"vidtube/internal/session"
)

type contextKey string

const principalKey contextKey = "principal"

type AuthMiddleware struct {
	guard *session.Guard
}

func NewAuthMiddleware(guard *session.Guard) *AuthMiddleware {
	return &AuthMiddleware{guard: guard}
}

// RequireAuth rejects the request unless it carries a valid access token in
// the accessToken cookie or, failing that, an Authorization bearer header.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := m.guard.Authenticate(r.Context(), extractToken(r))
		if err != nil {
			writeAppError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractToken(r *http.Request) string {
	if cookie, err := r.Cookie(constants.AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func GetPrincipal(r *http.Request) *session.Principal {
	if v := r.Context().Value(principalKey); v != nil {
		if principal, ok := v.(*session.Principal); ok {
			return principal
		}
	}
	return nil
}

// principalOrFail is for handlers behind RequireAuth.
func principalOrFail(w http.ResponseWriter, r *http.Request) (*session.Principal, bool) {
	principal := GetPrincipal(r)
	if principal == nil {
		writeAppError(w, r, apperr.Unauthorized("Unauthorized request"))
		return nil, false
	}
	return principal, true
}

func maxBodySizeMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
