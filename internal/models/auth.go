package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are carried by admin session tokens. RegisteredClaims.ID holds the session id.
type TokenClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AdminSession is created on full authentication and can be revoked
// independently of token expiry.
type AdminSession struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	IPAddress string     `json:"ip"`
	UserAgent string     `json:"userAgent"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
}

// Revoked reports whether the session was explicitly revoked
func (s *AdminSession) Revoked() bool {
	return s.RevokedAt != nil
}

// Valid reports whether the session can still authenticate requests at now
func (s *AdminSession) Valid(now time.Time) bool {
	return !s.Revoked() && now.Before(s.ExpiresAt)
}
