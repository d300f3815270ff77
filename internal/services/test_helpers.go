package services

import (
	"context"
	"time"

	"github.com/BradenHooton/marketguard/internal/models"
)

// MockLoginGuardRepository implements LoginGuardRepository for testing
type MockLoginGuardRepository struct {
	RecordAttemptFunc  func(ctx context.Context, attempt *models.LoginAttempt, keep int) error
	RecentAttemptsFunc func(ctx context.Context, accountID string, limit int) ([]models.LoginAttempt, error)
	GetLockoutFunc     func(ctx context.Context, accountID string) (*models.Lockout, error)
	CreateLockoutFunc  func(ctx context.Context, lockout *models.Lockout) (*models.Lockout, bool, error)
	DeleteExpiredFunc  func(ctx context.Context, now, attemptsBefore time.Time) (int64, error)
}

func (m *MockLoginGuardRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt, keep int) error {
	if m.RecordAttemptFunc != nil {
		return m.RecordAttemptFunc(ctx, attempt, keep)
	}
	return nil
}

func (m *MockLoginGuardRepository) RecentAttempts(ctx context.Context, accountID string, limit int) ([]models.LoginAttempt, error) {
	if m.RecentAttemptsFunc != nil {
		return m.RecentAttemptsFunc(ctx, accountID, limit)
	}
	return nil, nil
}

func (m *MockLoginGuardRepository) GetLockout(ctx context.Context, accountID string) (*models.Lockout, error) {
	if m.GetLockoutFunc != nil {
		return m.GetLockoutFunc(ctx, accountID)
	}
	return nil, nil
}

func (m *MockLoginGuardRepository) CreateLockout(ctx context.Context, lockout *models.Lockout) (*models.Lockout, bool, error) {
	if m.CreateLockoutFunc != nil {
		return m.CreateLockoutFunc(ctx, lockout)
	}
	return lockout, true, nil
}

func (m *MockLoginGuardRepository) DeleteExpired(ctx context.Context, now, attemptsBefore time.Time) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx, now, attemptsBefore)
	}
	return 0, nil
}

// MockCredentialVerifier implements CredentialVerifier for testing
type MockCredentialVerifier struct {
	VerifyFunc      func(ctx context.Context, email, password string) (*models.AdminUser, error)
	FindByEmailFunc func(ctx context.Context, email string) (*models.AdminUser, error)
	VerifyCalls     int
}

func (m *MockCredentialVerifier) Verify(ctx context.Context, email, password string) (*models.AdminUser, error) {
	m.VerifyCalls++
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, email, password)
	}
	return nil, models.ErrInvalidCredentials
}

func (m *MockCredentialVerifier) FindByEmail(ctx context.Context, email string) (*models.AdminUser, error) {
	if m.FindByEmailFunc != nil {
		return m.FindByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

// MockCodeSender captures delivered codes
type MockCodeSender struct {
	SendCodeFunc func(ctx context.Context, user *models.AdminUser, code string, expiresAt time.Time) error
	LastCode     string
	Sent         int
}

func (m *MockCodeSender) SendCode(ctx context.Context, user *models.AdminUser, code string, expiresAt time.Time) error {
	m.LastCode = code
	m.Sent++
	if m.SendCodeFunc != nil {
		return m.SendCodeFunc(ctx, user, code, expiresAt)
	}
	return nil
}

// StaticCodes is a CodeGenerator that hands out a fixed code
type StaticCodes struct {
	Code string
}

func (s StaticCodes) Generate(string) (string, string, error) {
	return s.Code, "static:" + s.Code, nil
}

func (s StaticCodes) Matches(hash, code string) bool {
	return hash == "static:"+code
}
