package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/marketguard/internal/models"
	pkgauth "github.com/BradenHooton/marketguard/pkg/auth"
	pkglogger "github.com/BradenHooton/marketguard/pkg/logger"
)

// CredentialVerifier checks admin credentials. Implementations return
// models.ErrInvalidCredentials for unknown accounts and wrong passwords alike.
type CredentialVerifier interface {
	Verify(ctx context.Context, email, password string) (*models.AdminUser, error)
	FindByEmail(ctx context.Context, email string) (*models.AdminUser, error)
}

// StaticAdminDirectory holds the single bootstrap administrator
type StaticAdminDirectory struct {
	user         models.AdminUser
	passwordHash string
}

// NewStaticAdminDirectory creates a directory for user. An empty email
// disables it: every verification fails.
func NewStaticAdminDirectory(user models.AdminUser, passwordHash string) *StaticAdminDirectory {
	user.Email = NormalizeAccount(user.Email)
	if user.Role == "" {
		user.Role = "admin"
	}
	return &StaticAdminDirectory{user: user, passwordHash: passwordHash}
}

func (d *StaticAdminDirectory) Verify(_ context.Context, email, password string) (*models.AdminUser, error) {
	if d.user.Email == "" || NormalizeAccount(email) != d.user.Email {
		pkgauth.CompareDummy(password)
		return nil, models.ErrInvalidCredentials
	}
	if err := pkgauth.ComparePassword(d.passwordHash, password); err != nil {
		return nil, models.ErrInvalidCredentials
	}
	user := d.user
	return &user, nil
}

func (d *StaticAdminDirectory) FindByEmail(_ context.Context, email string) (*models.AdminUser, error) {
	if d.user.Email == "" || NormalizeAccount(email) != d.user.Email {
		return nil, models.ErrNotFound
	}
	user := d.user
	return &user, nil
}

// NormalizeAccount maps an email to the account id used for lockouts
func NormalizeAccount(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CodeSender delivers two-factor codes to administrators
type CodeSender interface {
	SendCode(ctx context.Context, user *models.AdminUser, code string, expiresAt time.Time) error
}

// LogCodeSender records a delivery notice instead of sending mail. With
// revealCode set the code itself is logged, for local development only.
type LogCodeSender struct {
	logger     *slog.Logger
	revealCode bool
}

func NewLogCodeSender(logger *slog.Logger, revealCode bool) *LogCodeSender {
	return &LogCodeSender{logger: logger, revealCode: revealCode}
}

func (s *LogCodeSender) SendCode(ctx context.Context, user *models.AdminUser, code string, expiresAt time.Time) error {
	attrs := []slog.Attr{
		slog.String("user_id", user.ID),
		slog.String("account", pkglogger.SanitizedAccount(user.Email)),
		slog.Time("expires_at", expiresAt),
	}
	if s.revealCode {
		attrs = append(attrs, slog.String("code", code))
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "two-factor code issued", attrs...)
	return nil
}
