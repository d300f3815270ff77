package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-32-characters-long!")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.False(t, cfg.Database.Enabled)
	assert.Empty(t, cfg.Redis.Addr)

	assert.Equal(t, 5, cfg.LoginGuard.Threshold)
	assert.Equal(t, 15*time.Minute, cfg.LoginGuard.Window)
	assert.Equal(t, 30*time.Minute, cfg.LoginGuard.LockoutDuration)
	assert.Equal(t, 10, cfg.LoginGuard.HistorySize)
	assert.Equal(t, 10*time.Minute, cfg.LoginGuard.CodeTTL)

	assert.Equal(t, 10*time.Second, cfg.Heuristic.BurstWindow)
	assert.Equal(t, 50, cfg.Heuristic.BurstMax)
	assert.Equal(t, 0.85, cfg.Load.CPUThreshold)
	assert.Empty(t, cfg.Server.UpstreamURL)
	assert.Equal(t, 10*time.Second, cfg.Server.UpstreamTimeout)
	assert.Equal(t, 2*time.Second, cfg.Database.StatementTimeout)
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_DatabasePasswordRequiredWhenEnabled(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PASSWORD", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_AdminRequiresBcryptHash(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	t.Setenv("ADMIN_EMAIL", "Admin@Shop.io")
	t.Setenv("ADMIN_PASSWORD_HASH", "plaintext")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("ADMIN_PASSWORD_HASH", "$2a$10$abcdefghijklmnopqrstuuabcdefghijklmnopqrstuvwxyz01234")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "admin@shop.io", cfg.Admin.Email)
}

func TestLoad_HistoryMustCoverThreshold(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	t.Setenv("LOGIN_LOCKOUT_THRESHOLD", "8")
	t.Setenv("LOGIN_HISTORY_SIZE", "5")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidateJWTSecret(t *testing.T) {
	assert.Error(t, validateJWTSecret("short", "development"))
	assert.NoError(t, validateJWTSecret("sixteen-chars-ok", "development"))
	assert.Error(t, validateJWTSecret("sixteen-chars-ok", "production"))
}

func TestPolicyOverrides(t *testing.T) {
	got := policyOverrides([]string{
		"POLICY_SEARCH_MAX=5",
		"POLICY_SEARCH_WINDOW=2m",
		"POLICY_ADMIN_LOGIN_MAX=3",
		"POLICY_CART_MAX=notanumber",
		"POLICY_ORDERS_WINDOW=-1s",
		"PATH=/usr/bin",
	})

	assert.Equal(t, map[string]PolicyOverride{
		"search":      {Window: 2 * time.Minute, Max: 5},
		"admin_login": {Max: 3},
	}, got)
}

func TestGetEnvAsList(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", " 10.0.0.0/8, ,172.16.0.0/12 ")
	assert.Equal(t, []string{"10.0.0.0/8", "172.16.0.0/12"}, getEnvAsList("TRUSTED_PROXIES"))
}
