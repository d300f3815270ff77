package models

import (
	"time"
)

// TwoFactorChallenge is the single active challenge for a user.
// It is single-use: only a correct verification sets Used.
type TwoFactorChallenge struct {
	ID        string
	UserID    string
	CodeHash  string // bcrypt hash of the 6-digit code
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
}

// Expired reports whether the challenge TTL has passed at now
func (c *TwoFactorChallenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// TwoFactorRequiredResponse is returned when credentials were accepted and a code was issued
type TwoFactorRequiredResponse struct {
	RequiresTwoFactor bool   `json:"requiresTwoFactor"`
	ExpiresAt         string `json:"expiresAt"`
}
