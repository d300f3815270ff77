package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/marketguard/internal/auth"
	"github.com/BradenHooton/marketguard/internal/models"
	pkglogger "github.com/BradenHooton/marketguard/pkg/logger"
)

// LoginInput is one admin credential submission
type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// VerifyInput is one two-factor code submission
type VerifyInput struct {
	Email     string
	Code      string
	IPAddress string
	UserAgent string
}

// LoginResult is either a pending challenge or an established session
type LoginResult struct {
	RequiresTwoFactor  bool
	ChallengeExpiresAt time.Time
	Token              string
	Session            *models.AdminSession
	User               *models.AdminUser
}

// AdminAuthService drives the admin login state machine: lockout check,
// credential verification, optional two-factor challenge, session issue.
type AdminAuthService struct {
	guard    *LoginGuard
	verifier CredentialVerifier
	sessions *SessionService
	sender   CodeSender
	timing   *auth.TimingDelay
	audit    *pkglogger.AuditLogger
	logger   *slog.Logger
}

// NewAdminAuthService creates a new AdminAuthService. timing may be nil.
func NewAdminAuthService(
	guard *LoginGuard,
	verifier CredentialVerifier,
	sessions *SessionService,
	sender CodeSender,
	timing *auth.TimingDelay,
	logger *slog.Logger,
) *AdminAuthService {
	return &AdminAuthService{
		guard:    guard,
		verifier: verifier,
		sessions: sessions,
		sender:   sender,
		timing:   timing,
		audit:    pkglogger.NewAuditLogger(logger),
		logger:   logger,
	}
}

// Login checks the lockout before touching credentials. On success it
// either issues a challenge or, without two-factor, a session.
func (s *AdminAuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	start := time.Now()
	account := NormalizeAccount(in.Email)
	if account == "" {
		return nil, models.ErrInvalidCredentials
	}

	if _, err := s.guard.Check(ctx, account); err != nil {
		s.logRejected(pkglogger.EventAdminLogin, account, in.IPAddress, in.UserAgent, err)
		return nil, err
	}

	user, err := s.verifier.Verify(ctx, account, in.Password)
	if errors.Is(err, models.ErrInvalidCredentials) {
		defer s.timing.WaitFrom(ctx, start)
		return nil, s.fail(ctx, pkglogger.EventAdminLogin, account, in.IPAddress, in.UserAgent, models.FailureInvalidCredentials, err)
	}
	if err != nil {
		s.logger.Error("credential verification failed", slog.Any("error", err))
		return nil, err
	}

	if user.TwoFactorEnabled {
		code, expiresAt, err := s.guard.IssueChallenge(ctx, user.ID)
		if err != nil {
			s.logger.Error("failed to issue two-factor challenge", slog.String("user_id", user.ID), slog.Any("error", err))
			return nil, err
		}
		if err := s.sender.SendCode(ctx, user, code, expiresAt); err != nil {
			s.logger.Error("failed to deliver two-factor code", slog.String("user_id", user.ID), slog.Any("error", err))
			return nil, err
		}

		s.audit.LogAuthAttempt(pkglogger.AuditEvent{
			EventType: pkglogger.EventAdminLogin,
			UserID:    user.ID,
			Account:   account,
			IPAddress: in.IPAddress,
			UserAgent: in.UserAgent,
			Success:   true,
			Metadata:  map[string]string{"stage": "credentials"},
		})
		return &LoginResult{RequiresTwoFactor: true, ChallengeExpiresAt: expiresAt, User: user}, nil
	}

	return s.complete(ctx, pkglogger.EventAdminLogin, account, user, in.IPAddress, in.UserAgent)
}

// VerifyTwoFactor completes a login with the code from the active challenge.
// Wrong and expired codes count as failures toward lockout.
func (s *AdminAuthService) VerifyTwoFactor(ctx context.Context, in VerifyInput) (*LoginResult, error) {
	start := time.Now()
	account := NormalizeAccount(in.Email)
	if account == "" {
		return nil, models.ErrTwoFactorInvalid
	}

	if _, err := s.guard.Check(ctx, account); err != nil {
		s.logRejected(pkglogger.EventAdminTwoFactor, account, in.IPAddress, in.UserAgent, err)
		return nil, err
	}

	user, err := s.verifier.FindByEmail(ctx, account)
	switch {
	case errors.Is(err, models.ErrNotFound):
		defer s.timing.WaitFrom(ctx, start)
		return nil, s.fail(ctx, pkglogger.EventAdminTwoFactor, account, in.IPAddress, in.UserAgent, models.FailureInvalidTwoFactor, models.ErrTwoFactorInvalid)
	case err != nil:
		return nil, err
	}

	err = s.guard.VerifyChallenge(ctx, user.ID, in.Code)
	switch {
	case errors.Is(err, models.ErrTwoFactorExpired):
		defer s.timing.WaitFrom(ctx, start)
		return nil, s.fail(ctx, pkglogger.EventAdminTwoFactor, account, in.IPAddress, in.UserAgent, models.FailureExpiredTwoFactor, err)
	case errors.Is(err, models.ErrTwoFactorInvalid):
		defer s.timing.WaitFrom(ctx, start)
		return nil, s.fail(ctx, pkglogger.EventAdminTwoFactor, account, in.IPAddress, in.UserAgent, models.FailureInvalidTwoFactor, err)
	case err != nil:
		s.logger.Error("two-factor verification failed", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, err
	}

	return s.complete(ctx, pkglogger.EventAdminTwoFactor, account, user, in.IPAddress, in.UserAgent)
}

// complete records the success and opens a session
func (s *AdminAuthService) complete(ctx context.Context, eventType, account string, user *models.AdminUser, ip, ua string) (*LoginResult, error) {
	if err := s.guard.RecordSuccess(ctx, account, ip); err != nil {
		s.logger.Error("failed to record login success", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, err
	}

	token, session, err := s.sessions.Create(ctx, user, ip, ua)
	if err != nil {
		s.logger.Error("failed to create admin session", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, err
	}

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: eventType,
		UserID:    user.ID,
		Account:   account,
		IPAddress: ip,
		UserAgent: ua,
		Success:   true,
	})
	return &LoginResult{Token: token, Session: session, User: user}, nil
}

// fail records the failure and returns cause, or a *LockedError when this
// failure locked the account.
func (s *AdminAuthService) fail(ctx context.Context, eventType, account, ip, ua, reason string, cause error) error {
	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     eventType,
		Account:       account,
		IPAddress:     ip,
		UserAgent:     ua,
		Success:       false,
		FailureReason: reason,
	})

	lockout, err := s.guard.RecordFailure(ctx, account, ip, reason)
	if err != nil {
		s.logger.Error("failed to record login failure", slog.Any("error", err))
		return err
	}
	if lockout != nil {
		now := s.guard.clock.Now()
		return &LockedError{Lockout: *lockout, RetryAfter: lockout.Remaining(now)}
	}
	return cause
}

func (s *AdminAuthService) logRejected(eventType, account, ip, ua string, err error) {
	reason := "store_unavailable"
	if errors.Is(err, models.ErrAccountLocked) {
		reason = pkglogger.EventLockedRejected
	}
	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     eventType,
		Account:       account,
		IPAddress:     ip,
		UserAgent:     ua,
		Success:       false,
		FailureReason: reason,
	})
}
