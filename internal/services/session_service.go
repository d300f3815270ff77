package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/marketguard/internal/auth"
	"github.com/BradenHooton/marketguard/internal/clock"
	"github.com/BradenHooton/marketguard/internal/models"
	"github.com/BradenHooton/marketguard/pkg/logger"
)

// SessionRepository persists admin sessions
type SessionRepository interface {
	Create(ctx context.Context, s *models.AdminSession) error
	Get(ctx context.Context, id string) (*models.AdminSession, error)
	Revoke(ctx context.Context, id string, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SessionService issues and revokes admin sessions
type SessionService struct {
	repo   SessionRepository
	tokens *auth.TokenManager
	clock  clock.Clock
	ttl    time.Duration
	audit  *logger.AuditLogger
}

// NewSessionService creates a new SessionService
func NewSessionService(repo SessionRepository, tokens *auth.TokenManager, c clock.Clock, ttl time.Duration, log *slog.Logger) *SessionService {
	if c == nil {
		c = clock.Real{}
	}
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &SessionService{
		repo:   repo,
		tokens: tokens,
		clock:  c,
		ttl:    ttl,
		audit:  logger.NewAuditLogger(log),
	}
}

// Create starts a session for user and returns its signed token
func (s *SessionService) Create(ctx context.Context, user *models.AdminUser, ipAddress, userAgent string) (string, *models.AdminSession, error) {
	now := s.clock.Now()
	session := &models.AdminSession{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return "", nil, storeError("create session", err)
	}

	token, err := s.tokens.Issue(user, session)
	if err != nil {
		return "", nil, fmt.Errorf("issue session token: %w", err)
	}

	s.audit.LogSessionEvent(logger.EventSessionCreated, user.ID, session.ID, ipAddress)
	return token, session, nil
}

// Validate returns the live session, models.ErrNotFound for unknown ids or
// models.ErrSessionRevoked for revoked and expired sessions.
func (s *SessionService) Validate(ctx context.Context, sessionID string) (*models.AdminSession, error) {
	session, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Valid(s.clock.Now()) {
		return nil, models.ErrSessionRevoked
	}
	return session, nil
}

// Revoke ends a single session
func (s *SessionService) Revoke(ctx context.Context, session *models.AdminSession, ipAddress string) error {
	if err := s.repo.Revoke(ctx, session.ID, s.clock.Now()); err != nil {
		return err
	}
	s.audit.LogSessionEvent(logger.EventSessionRevoked, session.UserID, session.ID, ipAddress)
	return nil
}

// RevokeAll ends every live session of userID and returns how many were revoked
func (s *SessionService) RevokeAll(ctx context.Context, userID, ipAddress string) (int64, error) {
	n, err := s.repo.RevokeAllForUser(ctx, userID, s.clock.Now())
	if err != nil {
		return 0, err
	}
	s.audit.LogSessionEvent(logger.EventSessionRevoked, userID, "*", ipAddress)
	return n, nil
}

// Cleanup deletes sessions past their expiry
func (s *SessionService) Cleanup(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.clock.Now())
}
