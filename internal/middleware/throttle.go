package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BradenHooton/marketguard/internal/models"
	"github.com/BradenHooton/marketguard/internal/throttle"
	pkghttp "github.com/BradenHooton/marketguard/pkg/http"
	pkglogger "github.com/BradenHooton/marketguard/pkg/logger"
)

// Screener is the pre-policy abuse filter
type Screener interface {
	Check(ctx context.Context, id throttle.Identity) (throttle.Decision, error)
}

// Admitter evaluates a policy for an identity
type Admitter interface {
	Admit(ctx context.Context, id throttle.Identity, p throttle.Policy) (throttle.Decision, error)
}

// PolicyAdjuster may substitute a stricter policy under load
type PolicyAdjuster interface {
	Effective(p throttle.Policy) (throttle.Policy, bool)
}

// Throttler wires the throttling chain into HTTP: Screen runs the heuristic
// filter, Limit runs the adaptive substitution and the policy limiter.
type Throttler struct {
	screener Screener
	adjuster PolicyAdjuster
	limiter  Admitter
	audit    *pkglogger.AuditLogger
	logger   *slog.Logger
}

// NewThrottler creates a Throttler. screener and adjuster may be nil.
func NewThrottler(screener Screener, adjuster PolicyAdjuster, limiter Admitter, logger *slog.Logger) *Throttler {
	return &Throttler{
		screener: screener,
		adjuster: adjuster,
		limiter:  limiter,
		audit:    pkglogger.NewAuditLogger(logger),
		logger:   logger,
	}
}

// Screen rejects suspicious user agents with 403 and per-IP bursts with 429
func (t *Throttler) Screen() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if t.screener == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := identityOf(r)
			if _, err := t.screener.Check(r.Context(), id); err != nil {
				t.reject(w, id, err, false)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Limit enforces p, tightened while the process is under pressure
func (t *Throttler) Limit(p throttle.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p.ShouldSkip(r) {
				next.ServeHTTP(w, r)
				return
			}

			effective, tightened := p, false
			if t.adjuster != nil {
				effective, tightened = t.adjuster.Effective(p)
			}

			id := identityOf(r)
			d, err := t.limiter.Admit(r.Context(), id, effective)
			if err != nil {
				t.reject(w, id, err, tightened)
				return
			}

			setRateLimitHeaders(w, d)
			if d.Degraded {
				w.Header().Set("X-RateLimit-Degraded", "true")
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (t *Throttler) reject(w http.ResponseWriter, id throttle.Identity, err error, tightened bool) {
	rej, ok := throttle.AsRejection(err)
	switch {
	case ok && errors.Is(err, models.ErrBlocked):
		t.audit.LogThrottleEvent(pkglogger.ThrottleEvent{
			EventType: pkglogger.EventRequestBlocked,
			Policy:    rej.Decision.Policy,
			IPAddress: id.IP,
			UserID:    id.UserID,
			UserAgent: id.UserAgent,
		})
		pkghttp.WriteBlocked(w, rej.Message)

	case ok:
		t.audit.LogThrottleEvent(pkglogger.ThrottleEvent{
			EventType:  pkglogger.EventRequestThrottled,
			Policy:     rej.Decision.Policy,
			IPAddress:  id.IP,
			UserID:     id.UserID,
			RetryAfter: rej.Decision.RetryAfter,
			Tightened:  tightened,
		})
		setRateLimitHeaders(w, rej.Decision)
		pkghttp.WriteRateLimited(w, rej.Message, rej.Decision.RetryAfterSeconds())

	case errors.Is(err, models.ErrStoreUnavailable):
		t.logger.Error("admission failed closed", slog.String("ip_address", id.IP), slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w)

	default:
		t.logger.Error("admission check failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "An unexpected error occurred.")
	}
}

func setRateLimitHeaders(w http.ResponseWriter, d throttle.Decision) {
	if d.Limit <= 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
}
