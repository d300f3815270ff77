package heuristic

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/marketguard/internal/clock"
	"github.com/BradenHooton/marketguard/internal/metrics"
	"github.com/BradenHooton/marketguard/internal/models"
	"github.com/BradenHooton/marketguard/internal/store"
	"github.com/BradenHooton/marketguard/internal/throttle"
	"golang.org/x/time/rate"
)

// PolicyName labels decisions produced by the filter.
const PolicyName = "heuristic"

const (
	defaultBurstWindow = 10 * time.Second
	defaultBurstMax    = 50
	defaultEvalTimeout = 250 * time.Millisecond

	blockedMessage = "Access denied."
	burstMessage   = "Too many requests in a short period, please slow down."
)

// DefaultPatterns are user-agent fragments that suggest automated clients.
var DefaultPatterns = []string{
	"bot", "crawler", "spider", "scraper",
	"curl", "wget", "python-requests", "python-urllib", "go-http-client",
	"java/", "libwww", "httpclient", "scrapy",
	"headless", "phantomjs", "selenium",
	"nikto", "sqlmap",
}

// DefaultAllowlist are known-good crawlers that match DefaultPatterns.
var DefaultAllowlist = []string{
	"googlebot", "bingbot", "slurp", "duckduckbot", "baiduspider",
	"yandexbot", "applebot", "facebookexternalhit", "twitterbot", "linkedinbot",
}

// Config tunes the filter. Zero values take the defaults.
type Config struct {
	BurstWindow time.Duration
	BurstMax    int
	Patterns    []string
	Allowlist   []string
	EvalTimeout time.Duration
}

// Verdict is the user-agent classification.
type Verdict struct {
	Suspicious  bool
	Allowlisted bool
	Match       string // pattern or allowlist entry that decided the verdict
}

// Filter screens requests before any policy limiter runs: suspicious user
// agents are blocked outright, and every IP gets a short burst window kept in
// its own key namespace on the injected store.
type Filter struct {
	patterns  []string
	allowlist []string

	store   store.CounterStore
	clock   clock.Clock
	window  time.Duration
	max     int
	timeout time.Duration

	metrics *metrics.Metrics
	logger  *slog.Logger
	warn    *rate.Sometimes
}

// New creates a Filter counting bursts in handle's store.
func New(handle store.Handle, c clock.Clock, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Filter {
	if c == nil {
		c = clock.Real{}
	}
	if cfg.BurstWindow <= 0 {
		cfg.BurstWindow = defaultBurstWindow
	}
	if cfg.BurstMax <= 0 {
		cfg.BurstMax = defaultBurstMax
	}
	if cfg.EvalTimeout <= 0 {
		cfg.EvalTimeout = defaultEvalTimeout
	}
	if len(cfg.Patterns) == 0 {
		cfg.Patterns = DefaultPatterns
	}
	if cfg.Allowlist == nil {
		cfg.Allowlist = DefaultAllowlist
	}

	return &Filter{
		patterns:  lowerAll(cfg.Patterns),
		allowlist: lowerAll(cfg.Allowlist),
		store:     handle.Store,
		clock:     c,
		window:    cfg.BurstWindow,
		max:       cfg.BurstMax,
		timeout:   cfg.EvalTimeout,
		metrics:   m,
		logger:    logger.With(slog.String("component", "heuristic_filter")),
		warn:      &rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

// Classify matches userAgent against the allowlist first, then the patterns.
// An empty user agent is not suspicious.
func (f *Filter) Classify(userAgent string) Verdict {
	ua := strings.ToLower(strings.TrimSpace(userAgent))
	if ua == "" {
		return Verdict{}
	}

	for _, allowed := range f.allowlist {
		if strings.Contains(ua, allowed) {
			return Verdict{Allowlisted: true, Match: allowed}
		}
	}
	for _, pattern := range f.patterns {
		if strings.Contains(ua, pattern) {
			return Verdict{Suspicious: true, Match: pattern}
		}
	}
	return Verdict{}
}

// Check screens one request. A blocked or burst-limited request returns a
// *throttle.RejectionError unwrapping to models.ErrBlocked or
// models.ErrRateLimited. Store failures admit.
func (f *Filter) Check(ctx context.Context, id throttle.Identity) (throttle.Decision, error) {
	d := throttle.Decision{Policy: PolicyName, Limit: f.max}

	if v := f.Classify(id.UserAgent); v.Suspicious {
		f.metrics.ObserveHeuristicBlock(metrics.ReasonUserAgent)
		f.logger.Info("blocked suspicious user agent",
			slog.String("ip_address", id.IP),
			slog.String("match", v.Match))
		return d, &throttle.RejectionError{Decision: d, Message: blockedMessage, Err: models.ErrBlocked}
	}

	evalCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	adm, err := f.store.Admit(evalCtx, burstKey(id.IP), f.clock.Now(), f.window, f.max)
	if err != nil {
		f.warn.Do(func() {
			f.logger.Warn("burst window unavailable, admitting", slog.Any("error", err))
		})
		d.Allowed = true
		d.Degraded = true
		return d, nil
	}

	d.Remaining = f.max - adm.Count
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if adm.Allowed {
		d.Allowed = true
		return d, nil
	}

	d.RetryAfter = f.window
	f.metrics.ObserveHeuristicBlock(metrics.ReasonBurst)
	f.logger.Warn("request burst rejected",
		slog.String("ip_address", id.IP),
		slog.Int("burst_max", f.max),
		slog.Duration("burst_window", f.window))
	return d, &throttle.RejectionError{Decision: d, Message: burstMessage, Err: models.ErrRateLimited}
}

func burstKey(ip string) string {
	return "ddos:ip:" + ip
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
