package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	ErrSigningKeyMissing = errors.New("signing key is not configured")
	ErrTokenExpired      = errors.New("token is expired")
	ErrTokenMalformed    = errors.New("token is malformed")
	ErrTokenSignature    = errors.New("token signature is invalid")
	ErrTokenType         = errors.New("token has the wrong type")
)

type Claims struct {
	SessionID string `json:"sid"`
	Type      string `json:"typ"`
	jwt.RegisteredClaims
}

// UserID is the identity the token was issued to.
func (c *Claims) UserID() string {
	return c.Subject
}

type TokenIssuer struct {
	accessSecret    []byte
	refreshSecret   []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	now             func() time.Time
}

func NewTokenIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		accessSecret:    []byte(accessSecret),
		refreshSecret:   []byte(refreshSecret),
		accessTokenTTL:  accessTTL,
		refreshTokenTTL: refreshTTL,
		now:             time.Now,
	}
}

func (i *TokenIssuer) AccessTokenTTL() time.Duration {
	return i.accessTokenTTL
}

func (i *TokenIssuer) RefreshTokenTTL() time.Duration {
	return i.refreshTokenTTL
}

func (i *TokenIssuer) IssueAccessToken(userID, sessionID string) (string, time.Time, error) {
	return i.issue(i.accessSecret, TokenTypeAccess, i.accessTokenTTL, userID, sessionID)
}

func (i *TokenIssuer) IssueRefreshToken(userID, sessionID string) (string, time.Time, error) {
	return i.issue(i.refreshSecret, TokenTypeRefresh, i.refreshTokenTTL, userID, sessionID)
}

func (i *TokenIssuer) VerifyAccessToken(token string) (*Claims, error) {
	return i.verify(i.accessSecret, TokenTypeAccess, token)
}

func (i *TokenIssuer) VerifyRefreshToken(token string) (*Claims, error) {
	return i.verify(i.refreshSecret, TokenTypeRefresh, token)
}

func (i *TokenIssuer) issue(secret []byte, typ string, ttl time.Duration, userID, sessionID string) (string, time.Time, error) {
	if len(secret) == 0 {
		return "", time.Time{}, ErrSigningKeyMissing
	}

	now := i.now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		SessionID: sessionID,
		Type:      typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing %s token: %w", typ, err)
	}
	return signed, expiresAt, nil
}

func (i *TokenIssuer) verify(secret []byte, typ, tokenString string) (*Claims, error) {
	if len(secret) == 0 {
		return nil, ErrSigningKeyMissing
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired())
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, ErrTokenSignature
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
	}
	if !token.Valid {
		return nil, ErrTokenMalformed
	}
	if claims.Type != typ {
		return nil, ErrTokenType
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// HashToken is the stored form of a refresh token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
