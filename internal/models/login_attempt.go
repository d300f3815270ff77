package models

import "time"

// LoginAttempt is one entry in an account's bounded attempt history
type LoginAttempt struct {
	ID        string    `db:"id"`
	AccountID string    `db:"account_id"`
	IPAddress string    `db:"ip_address"`
	Success   bool      `db:"success"`
	Reason    string    `db:"reason"` // empty on success
	Timestamp time.Time `db:"attempted_at"`
}

// Lockout exists only while an account is locked; absence means unlocked
type Lockout struct {
	AccountID string        `db:"account_id"`
	Start     time.Time     `db:"started_at"`
	Duration  time.Duration `db:"duration"`
}

// Until returns the instant the lockout clears
func (l *Lockout) Until() time.Time {
	return l.Start.Add(l.Duration)
}

// Active reports whether the lockout still blocks attempts at now
func (l *Lockout) Active(now time.Time) bool {
	return now.Before(l.Until())
}

// Remaining returns the time left on the lockout, or zero once it has cleared
func (l *Lockout) Remaining(now time.Time) time.Duration {
	if !l.Active(now) {
		return 0
	}
	return l.Until().Sub(now)
}

// Failure reasons recorded with login attempts
const (
	FailureInvalidCredentials = "invalid_credentials"
	FailureInvalidTwoFactor   = "invalid_two_factor"
	FailureExpiredTwoFactor   = "expired_two_factor"
)
