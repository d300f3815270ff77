package throttle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/marketguard/internal/clock"
	"github.com/BradenHooton/marketguard/internal/metrics"
	"github.com/BradenHooton/marketguard/internal/models"
	"github.com/BradenHooton/marketguard/internal/store"
	"golang.org/x/time/rate"
)

const (
	defaultEvalTimeout  = 250 * time.Millisecond
	defaultWarnInterval = 10 * time.Second
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Policy     string
	Limit      int
	Remaining  int
	RetryAfter time.Duration // set on rejection, 0 < RetryAfter <= window
	Degraded   bool          // the store failed and the policy failed open
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1.
func (d Decision) RetryAfterSeconds() int {
	return RetryAfterSeconds(d.RetryAfter)
}

// RetryAfterSeconds rounds d up to whole seconds, minimum 1.
func RetryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// RejectionError carries the decision behind a rate-limited or blocked
// request. It unwraps to models.ErrRateLimited or models.ErrBlocked.
type RejectionError struct {
	Decision Decision
	Message  string
	Err      error
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%v: policy %s", e.Err, e.Decision.Policy)
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}

// AsRejection extracts a RejectionError from err.
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// LimiterConfig tunes a Limiter.
type LimiterConfig struct {
	// EvalTimeout bounds a single admission check.
	EvalTimeout time.Duration
	// WarnInterval throttles the store-degradation warning.
	WarnInterval time.Duration
}

// Limiter is the sliding-window admission algorithm over the store handle
// chosen at startup.
type Limiter struct {
	handle  store.Handle
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	warn    *rate.Sometimes
}

// NewLimiter creates a Limiter. metrics may be nil.
func NewLimiter(handle store.Handle, c clock.Clock, cfg LimiterConfig, m *metrics.Metrics, logger *slog.Logger) *Limiter {
	if c == nil {
		c = clock.Real{}
	}
	if cfg.EvalTimeout <= 0 {
		cfg.EvalTimeout = defaultEvalTimeout
	}
	if cfg.WarnInterval <= 0 {
		cfg.WarnInterval = defaultWarnInterval
	}
	return &Limiter{
		handle:  handle,
		clock:   c,
		logger:  logger.With(slog.String("component", "limiter")),
		metrics: m,
		timeout: cfg.EvalTimeout,
		warn:    &rate.Sometimes{First: 1, Interval: cfg.WarnInterval},
	}
}

// StoreKind reports which store the limiter counts in.
func (l *Limiter) StoreKind() store.Kind {
	return l.handle.Kind
}

// Admit evaluates one request for id under p.
//
// An admitted request returns a nil error. A rejected request returns a
// *RejectionError. When the store fails, p.FailOpen decides: open admits
// with Decision.Degraded set, closed returns an error wrapping
// models.ErrStoreUnavailable.
func (l *Limiter) Admit(ctx context.Context, id Identity, p Policy) (Decision, error) {
	now := l.clock.Now()
	d := Decision{Policy: p.Name, Limit: p.Max}

	evalCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	adm, err := l.handle.Store.Admit(evalCtx, p.CounterKey(id), now, p.Window, p.Max)
	if err != nil {
		return l.degraded(d, p, err)
	}

	d.Remaining = p.Max - adm.Count
	if d.Remaining < 0 {
		d.Remaining = 0
	}

	if adm.Allowed {
		d.Allowed = true
		l.metrics.ObserveDecision(p.Name, metrics.OutcomeAllowed)
		return d, nil
	}

	d.RetryAfter = retryAfter(now, adm.Earliest, p.Window)
	l.metrics.ObserveDecision(p.Name, metrics.OutcomeRejected)
	l.logger.Debug("request rate limited",
		slog.String("policy", p.Name),
		slog.Bool("tightened", p.Tightened),
		slog.Duration("retry_after", d.RetryAfter))

	return d, &RejectionError{Decision: d, Message: p.Message, Err: models.ErrRateLimited}
}

func (l *Limiter) degraded(d Decision, p Policy, err error) (Decision, error) {
	l.warn.Do(func() {
		l.logger.Warn("counter store failure during admission",
			slog.String("policy", p.Name),
			slog.String("store_kind", string(l.handle.Kind)),
			slog.Bool("fail_open", p.FailOpen),
			slog.Any("error", err))
	})

	if p.FailOpen {
		d.Allowed = true
		d.Degraded = true
		d.Remaining = p.Max
		l.metrics.ObserveDecision(p.Name, metrics.OutcomeFailOpen)
		return d, nil
	}

	l.metrics.ObserveDecision(p.Name, metrics.OutcomeFailClosed)
	if errors.Is(err, models.ErrStoreUnavailable) {
		return d, err
	}
	return d, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
}

// retryAfter is window - (now - earliest), clamped to (0, window].
func retryAfter(now, earliest time.Time, window time.Duration) time.Duration {
	if earliest.IsZero() {
		return window
	}
	d := window - now.Sub(earliest)
	if d <= 0 {
		return time.Millisecond
	}
	if d > window {
		return window
	}
	return d
}
