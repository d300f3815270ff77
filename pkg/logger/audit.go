package logger

import (
	"context"
	"log/slog"
	"time"
)

// Audit event types
const (
	EventAdminLogin        = "admin_login"
	EventAdminTwoFactor    = "admin_two_factor"
	EventAccountLocked     = "account_locked"
	EventLockedRejected    = "locked_attempt_rejected"
	EventSessionCreated    = "session_created"
	EventSessionRevoked    = "session_revoked"
	EventRequestThrottled  = "request_throttled"
	EventRequestBlocked    = "request_blocked"
	EventStoreDegradedOpen = "store_degraded_fail_open"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	UserID        string
	Account       string // masked before logging
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// ThrottleEvent describes a rejected or degraded admission decision
type ThrottleEvent struct {
	EventType  string
	Policy     string
	IPAddress  string
	UserID     string
	UserAgent  string
	RetryAfter time.Duration
	Tightened  bool
}

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogAuthAttempt logs admin authentication attempts and their outcome
func (al *AuditLogger) LogAuthAttempt(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.Account != "" {
		attrs = append(attrs, slog.String("account", SanitizedAccount(event.Account)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", SanitizedUserAgent(event.UserAgent)))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

// LogLockout logs the creation of a lockout for an account
func (al *AuditLogger) LogLockout(account, ipAddress string, failures int, until time.Time) {
	al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit",
		slog.String("audit_type", "auth"),
		slog.String("event_type", EventAccountLocked),
		slog.String("account", SanitizedAccount(account)),
		slog.String("ip_address", ipAddress),
		slog.Int("failures", failures),
		slog.String("locked_until", until.UTC().Format(time.RFC3339)),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	)
}

// LogSessionEvent logs admin session lifecycle changes
func (al *AuditLogger) LogSessionEvent(eventType, userID, sessionID, ipAddress string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "session"),
		slog.String("event_type", eventType),
		slog.String("user_id", userID),
		slog.String("session_id", sessionID),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	if ipAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ipAddress))
	}
	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
}

// LogThrottleEvent logs requests rejected by the throttling chain
func (al *AuditLogger) LogThrottleEvent(event ThrottleEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "throttle"),
		slog.String("event_type", event.EventType),
		slog.String("policy", event.Policy),
		slog.String("ip_address", event.IPAddress),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", SanitizedUserAgent(event.UserAgent)))
	}
	if event.RetryAfter > 0 {
		attrs = append(attrs, slog.Duration("retry_after", event.RetryAfter))
	}
	if event.Tightened {
		attrs = append(attrs, slog.Bool("tightened", true))
	}
	al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
}
