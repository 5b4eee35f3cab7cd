package models

import "time"

// User is the caller-facing projection of an identity. It never carries the
// password hash or any refresh-token material.
type User struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	FullName      string     `json:"fullName"`
	AvatarURL     string     `json:"avatar"`
	CoverImageURL string     `json:"coverImage"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
}

// Credentials is what login and password change need to verify a password.
type Credentials struct {
	UserID       string
	PasswordHash string
}

type Session struct {
	ID               string     `json:"id"`
	UserID           string     `json:"-"`
	RefreshTokenHash string     `json:"-"`
	UserAgent        string     `json:"userAgent"`
	IPAddress        string     `json:"ipAddress"`
	CreatedAt        time.Time  `json:"createdAt"`
	LastUsedAt       *time.Time `json:"lastUsedAt,omitempty"`
	ExpiresAt        time.Time  `json:"expiresAt"`
	RevokedAt        *time.Time `json:"-"`
}

func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
