package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/marketguard/internal/clock"
	"github.com/BradenHooton/marketguard/internal/metrics"
	"github.com/BradenHooton/marketguard/internal/models"
	"github.com/BradenHooton/marketguard/pkg/logger"
)

// LoginGuardRepository persists attempt history and lockouts
type LoginGuardRepository interface {
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt, keep int) error
	RecentAttempts(ctx context.Context, accountID string, limit int) ([]models.LoginAttempt, error)
	GetLockout(ctx context.Context, accountID string) (*models.Lockout, error)
	CreateLockout(ctx context.Context, lockout *models.Lockout) (*models.Lockout, bool, error)
	DeleteExpired(ctx context.Context, now, attemptsBefore time.Time) (int64, error)
}

// ChallengeRepository persists the single active two-factor challenge per user
type ChallengeRepository interface {
	Put(ctx context.Context, c *models.TwoFactorChallenge) error
	Get(ctx context.Context, userID string) (*models.TwoFactorChallenge, error)
	MarkUsed(ctx context.Context, userID, challengeID string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// CodeGenerator produces challenge codes and checks them against stored hashes
type CodeGenerator interface {
	Generate(accountName string) (code string, hash string, err error)
	Matches(hash, code string) bool
}

// LoginGuardConfig holds lockout and challenge settings
type LoginGuardConfig struct {
	Threshold        int           // failures that trigger a lockout
	Window           time.Duration // trailing window failures are counted in
	LockoutDuration  time.Duration
	HistorySize      int // attempts kept per account
	CodeTTL          time.Duration
	AttemptRetention time.Duration // how long cleanup keeps attempt rows
}

// DefaultLoginGuardConfig returns the standard admin login settings
func DefaultLoginGuardConfig() LoginGuardConfig {
	return LoginGuardConfig{
		Threshold:        5,
		Window:           15 * time.Minute,
		LockoutDuration:  30 * time.Minute,
		HistorySize:      10,
		CodeTTL:          10 * time.Minute,
		AttemptRetention: 24 * time.Hour,
	}
}

// LockedError is returned while an account is locked. It unwraps to
// models.ErrAccountLocked.
type LockedError struct {
	Lockout    models.Lockout
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s: retry after %s", models.ErrAccountLocked, e.RetryAfter)
}

func (e *LockedError) Unwrap() error {
	return models.ErrAccountLocked
}

// LoginGuard tracks failed admin login attempts, locks accounts that cross
// the failure threshold and owns the two-factor challenge lifecycle.
// Persistence errors fail closed.
type LoginGuard struct {
	repo       LoginGuardRepository
	challenges ChallengeRepository
	codes      CodeGenerator
	clock      clock.Clock
	config     LoginGuardConfig
	metrics    *metrics.Metrics
	audit      *logger.AuditLogger
	logger     *slog.Logger
}

// NewLoginGuard creates a new LoginGuard
func NewLoginGuard(
	repo LoginGuardRepository,
	challenges ChallengeRepository,
	codes CodeGenerator,
	c clock.Clock,
	config LoginGuardConfig,
	m *metrics.Metrics,
	log *slog.Logger,
) *LoginGuard {
	defaults := DefaultLoginGuardConfig()
	if config.Threshold <= 0 {
		config.Threshold = defaults.Threshold
	}
	if config.Window <= 0 {
		config.Window = defaults.Window
	}
	if config.LockoutDuration <= 0 {
		config.LockoutDuration = defaults.LockoutDuration
	}
	if config.HistorySize < config.Threshold {
		config.HistorySize = max(defaults.HistorySize, config.Threshold)
	}
	if config.CodeTTL <= 0 {
		config.CodeTTL = defaults.CodeTTL
	}
	if config.AttemptRetention < config.Window {
		config.AttemptRetention = max(defaults.AttemptRetention, config.Window)
	}
	if c == nil {
		c = clock.Real{}
	}

	return &LoginGuard{
		repo:       repo,
		challenges: challenges,
		codes:      codes,
		clock:      c,
		config:     config,
		metrics:    m,
		audit:      logger.NewAuditLogger(log),
		logger:     log,
	}
}

// Check returns a *LockedError while the account is locked. Absence of a
// lockout, or an expired one, means unlocked.
func (g *LoginGuard) Check(ctx context.Context, accountID string) (*models.Lockout, error) {
	lockout, err := g.repo.GetLockout(ctx, accountID)
	if err != nil {
		g.logger.Error("lockout lookup failed", slog.String("account", logger.SanitizedAccount(accountID)), slog.Any("error", err))
		return nil, storeError("lockout lookup", err)
	}

	now := g.clock.Now()
	if lockout == nil || !lockout.Active(now) {
		return nil, nil
	}

	g.metrics.ObserveLoginGuard(metrics.EventLockedReject)
	return lockout, &LockedError{Lockout: *lockout, RetryAfter: lockout.Remaining(now)}
}

// RecordFailure appends a failed attempt and creates a lockout once the
// failures since the last success within the window reach the threshold.
// The returned lockout is non-nil when the account is locked after this call.
func (g *LoginGuard) RecordFailure(ctx context.Context, accountID, ipAddress, reason string) (*models.Lockout, error) {
	now := g.clock.Now()
	attempt := &models.LoginAttempt{
		ID:        uuid.NewString(),
		AccountID: accountID,
		IPAddress: ipAddress,
		Success:   false,
		Reason:    reason,
		Timestamp: now,
	}
	if err := g.repo.RecordAttempt(ctx, attempt, g.config.HistorySize); err != nil {
		return nil, storeError("record attempt", err)
	}
	g.metrics.ObserveLoginGuard(metrics.EventFailure)

	recent, err := g.repo.RecentAttempts(ctx, accountID, g.config.HistorySize)
	if err != nil {
		return nil, storeError("attempt history", err)
	}

	failures := countFailures(recent, now.Add(-g.config.Window))
	if failures < g.config.Threshold {
		return nil, nil
	}

	lockout, created, err := g.repo.CreateLockout(ctx, &models.Lockout{
		AccountID: accountID,
		Start:     now,
		Duration:  g.config.LockoutDuration,
	})
	if err != nil {
		return nil, storeError("create lockout", err)
	}
	if created {
		g.metrics.ObserveLoginGuard(metrics.EventLockout)
		g.audit.LogLockout(accountID, ipAddress, failures, lockout.Until())
	}
	return lockout, nil
}

// countFailures counts failures newer than cutoff, stopping at the most
// recent success. attempts must be newest first.
func countFailures(attempts []models.LoginAttempt, cutoff time.Time) int {
	n := 0
	for _, a := range attempts {
		if a.Success || !a.Timestamp.After(cutoff) {
			break
		}
		n++
	}
	return n
}

// RecordSuccess appends a successful attempt, which resets failure counting
func (g *LoginGuard) RecordSuccess(ctx context.Context, accountID, ipAddress string) error {
	attempt := &models.LoginAttempt{
		ID:        uuid.NewString(),
		AccountID: accountID,
		IPAddress: ipAddress,
		Success:   true,
		Timestamp: g.clock.Now(),
	}
	if err := g.repo.RecordAttempt(ctx, attempt, g.config.HistorySize); err != nil {
		return storeError("record attempt", err)
	}
	g.metrics.ObserveLoginGuard(metrics.EventSuccess)
	return nil
}

// IssueChallenge creates a new code for userID, replacing any earlier
// challenge. The plaintext code is returned for delivery and never stored.
func (g *LoginGuard) IssueChallenge(ctx context.Context, userID string) (string, time.Time, error) {
	code, hash, err := g.codes.Generate(userID)
	if err != nil {
		return "", time.Time{}, err
	}

	now := g.clock.Now()
	challenge := &models.TwoFactorChallenge{
		ID:        uuid.NewString(),
		UserID:    userID,
		CodeHash:  hash,
		CreatedAt: now,
		ExpiresAt: now.Add(g.config.CodeTTL),
	}
	if err := g.challenges.Put(ctx, challenge); err != nil {
		return "", time.Time{}, storeError("store challenge", err)
	}

	g.metrics.ObserveLoginGuard(metrics.EventChallengeIssued)
	return code, challenge.ExpiresAt, nil
}

// VerifyChallenge consumes the user's challenge when code is correct.
// Expired and wrong codes leave the challenge untouched.
func (g *LoginGuard) VerifyChallenge(ctx context.Context, userID, code string) error {
	challenge, err := g.challenges.Get(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		g.metrics.ObserveLoginGuard(metrics.EventChallengeInvalid)
		return models.ErrTwoFactorInvalid
	}
	if err != nil {
		return storeError("challenge lookup", err)
	}

	if challenge.Used {
		g.metrics.ObserveLoginGuard(metrics.EventChallengeInvalid)
		return models.ErrTwoFactorInvalid
	}
	if challenge.Expired(g.clock.Now()) {
		g.metrics.ObserveLoginGuard(metrics.EventChallengeExpired)
		return models.ErrTwoFactorExpired
	}
	if !g.codes.Matches(challenge.CodeHash, code) {
		g.metrics.ObserveLoginGuard(metrics.EventChallengeInvalid)
		return models.ErrTwoFactorInvalid
	}

	consumed, err := g.challenges.MarkUsed(ctx, userID, challenge.ID)
	if err != nil {
		return storeError("consume challenge", err)
	}
	if !consumed {
		// a concurrent verification or a newer challenge won
		g.metrics.ObserveLoginGuard(metrics.EventChallengeInvalid)
		return models.ErrTwoFactorInvalid
	}
	return nil
}

// Cleanup removes expired lockouts, stale attempts and dead challenges
func (g *LoginGuard) Cleanup(ctx context.Context) (int64, error) {
	now := g.clock.Now()
	removed, err := g.repo.DeleteExpired(ctx, now, now.Add(-g.config.AttemptRetention))
	if err != nil {
		return 0, err
	}
	challenges, err := g.challenges.DeleteExpired(ctx, now)
	if err != nil {
		return removed, err
	}
	return removed + challenges, nil
}

func storeError(op string, err error) error {
	if errors.Is(err, models.ErrStoreUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, models.ErrStoreUnavailable, err)
}
