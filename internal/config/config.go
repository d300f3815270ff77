package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	RateLimit  RateLimitConfig
	Heuristic  HeuristicConfig
	Load       LoadConfig
	LoginGuard LoginGuardConfig
	Auth       AuthConfig
	Admin      AdminConfig
}

type ServerConfig struct {
	Port            string
	Env             string
	LogLevel        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	TrustedProxies  []string
	MetricsPerMin   int // coarse limit on the /metrics endpoint
	AllowedOrigins  []string
	UpstreamURL     string // storefront backend; empty disables proxying
	UpstreamTimeout time.Duration
}

// DatabaseConfig is optional. Without DB_HOST the login guard keeps its
// state in process memory.
type DatabaseConfig struct {
	Enabled           bool
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	StatementTimeout  time.Duration
	AutoMigrate       bool
}

// RedisConfig is optional. Without REDIS_ADDR counters live in process memory.
type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	PoolSize        int
	DialTimeout     time.Duration
	OpTimeout       time.Duration
	ProbeTimeout    time.Duration
	BreakerFailures int
	BreakerTimeout  time.Duration
	MaxClockSkew    time.Duration
}

// PolicyOverride replaces a default policy's window and/or max
type PolicyOverride struct {
	Window time.Duration
	Max    int
}

type RateLimitConfig struct {
	EvalTimeout   time.Duration
	SweepEvery    int
	SweepInterval time.Duration
	Overrides     map[string]PolicyOverride // keyed by lower-case policy name
}

type HeuristicConfig struct {
	Enabled     bool
	BurstWindow time.Duration
	BurstMax    int
	Patterns    []string // empty keeps the built-in set
	Allowlist   []string
}

type LoadConfig struct {
	Enabled       bool
	CPUThreshold  float64
	HeapThreshold float64
	Factor        float64
	MinInterval   time.Duration
}

type LoginGuardConfig struct {
	Threshold       int
	Window          time.Duration
	LockoutDuration time.Duration
	HistorySize     int
	CodeTTL         time.Duration
	CodeHashCost    int
	FailureDelay    time.Duration
	CleanupInterval time.Duration
}

type AuthConfig struct {
	JWTSecret  string
	SessionTTL time.Duration
}

// AdminConfig is the bootstrap administrator. Credential storage is owned
// elsewhere; this account only exists so the login path can be exercised.
type AdminConfig struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	TwoFactor    bool
	LogCodes     bool // include challenge codes in delivery logs; development only
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Env:             env,
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			TrustedProxies:  getEnvAsList("TRUSTED_PROXIES"),
			MetricsPerMin:   getEnvAsInt("METRICS_REQUESTS_PER_MINUTE", 60),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS"),
			UpstreamURL:     getEnv("UPSTREAM_URL", ""),
			UpstreamTimeout: getEnvAsDuration("UPSTREAM_RESPONSE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Enabled:           getEnv("DB_HOST", "") != "",
			Host:              getEnv("DB_HOST", ""),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "marketguard"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 10)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 2)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			StatementTimeout:  getEnvAsDuration("DB_STATEMENT_TIMEOUT", 2*time.Second),
			AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", false),
		},
		Redis: RedisConfig{
			Addr:            getEnv("REDIS_ADDR", ""),
			Password:        getEnv("REDIS_PASSWORD", ""),
			DB:              getEnvAsInt("REDIS_DB", 0),
			PoolSize:        getEnvAsInt("REDIS_POOL_SIZE", 20),
			DialTimeout:     getEnvAsDuration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			OpTimeout:       getEnvAsDuration("REDIS_OP_TIMEOUT", 150*time.Millisecond),
			ProbeTimeout:    getEnvAsDuration("REDIS_PROBE_TIMEOUT", 2*time.Second),
			BreakerFailures: getEnvAsInt("REDIS_BREAKER_FAILURES", 5),
			BreakerTimeout:  getEnvAsDuration("REDIS_BREAKER_TIMEOUT", 30*time.Second),
			MaxClockSkew:    getEnvAsDuration("REDIS_MAX_CLOCK_SKEW", 500*time.Millisecond),
		},
		RateLimit: RateLimitConfig{
			EvalTimeout:   getEnvAsDuration("RATE_LIMIT_EVAL_TIMEOUT", 250*time.Millisecond),
			SweepEvery:    getEnvAsInt("RATE_LIMIT_SWEEP_EVERY", 1000),
			SweepInterval: getEnvAsDuration("RATE_LIMIT_SWEEP_INTERVAL", time.Minute),
			Overrides:     policyOverrides(os.Environ()),
		},
		Heuristic: HeuristicConfig{
			Enabled:     getEnvAsBool("HEURISTIC_ENABLED", true),
			BurstWindow: getEnvAsDuration("HEURISTIC_BURST_WINDOW", 10*time.Second),
			BurstMax:    getEnvAsInt("HEURISTIC_BURST_MAX", 50),
			Patterns:    getEnvAsList("HEURISTIC_PATTERNS"),
			Allowlist:   getEnvAsList("HEURISTIC_ALLOWLIST"),
		},
		Load: LoadConfig{
			Enabled:       getEnvAsBool("ADAPTIVE_ENABLED", true),
			CPUThreshold:  getEnvAsFloat("ADAPTIVE_CPU_THRESHOLD", 0.85),
			HeapThreshold: getEnvAsFloat("ADAPTIVE_HEAP_THRESHOLD", 0.85),
			Factor:        getEnvAsFloat("ADAPTIVE_FACTOR", 0.5),
			MinInterval:   getEnvAsDuration("ADAPTIVE_SAMPLE_INTERVAL", time.Second),
		},
		LoginGuard: LoginGuardConfig{
			Threshold:       getEnvAsInt("LOGIN_LOCKOUT_THRESHOLD", 5),
			Window:          getEnvAsDuration("LOGIN_FAILURE_WINDOW", 15*time.Minute),
			LockoutDuration: getEnvAsDuration("LOGIN_LOCKOUT_DURATION", 30*time.Minute),
			HistorySize:     getEnvAsInt("LOGIN_HISTORY_SIZE", 10),
			CodeTTL:         getEnvAsDuration("TWO_FACTOR_CODE_TTL", 10*time.Minute),
			CodeHashCost:    getEnvAsInt("TWO_FACTOR_HASH_COST", 10),
			FailureDelay:    getEnvAsDuration("LOGIN_FAILURE_DELAY", 250*time.Millisecond),
			CleanupInterval: getEnvAsDuration("LOGIN_CLEANUP_INTERVAL", 15*time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret:  jwtSecret,
			SessionTTL: getEnvAsDuration("ADMIN_SESSION_TTL", 8*time.Hour),
		},
		Admin: AdminConfig{
			ID:           getEnv("ADMIN_ID", "admin"),
			Email:        strings.ToLower(strings.TrimSpace(getEnv("ADMIN_EMAIL", ""))),
			Name:         getEnv("ADMIN_NAME", "Administrator"),
			PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
			TwoFactor:    getEnvAsBool("ADMIN_TWO_FACTOR", true),
			LogCodes:     getEnvAsBool("TWO_FACTOR_LOG_CODES", false),
		},
	}

	if cfg.Database.Enabled && cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required when DB_HOST is set")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if cfg.Admin.Email != "" && !strings.HasPrefix(cfg.Admin.PasswordHash, "$2") {
		return nil, fmt.Errorf("ADMIN_PASSWORD_HASH must be a bcrypt hash when ADMIN_EMAIL is set")
	}

	if cfg.LoginGuard.Threshold < 1 || cfg.LoginGuard.HistorySize < cfg.LoginGuard.Threshold {
		return nil, fmt.Errorf("LOGIN_HISTORY_SIZE (%d) must be at least LOGIN_LOCKOUT_THRESHOLD (%d) and the threshold positive",
			cfg.LoginGuard.HistorySize, cfg.LoginGuard.Threshold)
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// policyOverrides collects POLICY_<NAME>_WINDOW and POLICY_<NAME>_MAX.
func policyOverrides(environ []string) map[string]PolicyOverride {
	overrides := make(map[string]PolicyOverride)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "POLICY_") || value == "" {
			continue
		}
		rest := strings.TrimPrefix(key, "POLICY_")

		switch {
		case strings.HasSuffix(rest, "_WINDOW"):
			d, err := time.ParseDuration(value)
			if err != nil || d <= 0 {
				continue
			}
			name := strings.ToLower(strings.TrimSuffix(rest, "_WINDOW"))
			o := overrides[name]
			o.Window = d
			overrides[name] = o
		case strings.HasSuffix(rest, "_MAX"):
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				continue
			}
			name := strings.ToLower(strings.TrimSuffix(rest, "_MAX"))
			o := overrides[name]
			o.Max = n
			overrides[name] = o
		}
	}
	return overrides
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
