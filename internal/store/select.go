package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/marketguard/internal/clock"
)

const (
	defaultProbeTimeout = 2 * time.Second
	defaultMaxClockSkew = 500 * time.Millisecond
)

// SelectConfig drives the one-time store selection at startup.
type SelectConfig struct {
	Redis        RedisConfig
	Memory       MemoryConfig
	ProbeTimeout time.Duration

	// MaxClockSkew is the tolerated offset between this process and the
	// Redis server before a warning is logged.
	MaxClockSkew time.Duration
}

// Select probes the shared store once and returns the handle every limiter
// will use for the process lifetime. When Redis is not configured or the probe
// fails, the process degrades to a MemoryStore and never re-probes.
func Select(ctx context.Context, cfg SelectConfig, c clock.Clock, logger *slog.Logger) Handle {
	local := func(reason string) Handle {
		logger.Warn("using process-local counter store",
			slog.String("reason", reason),
			slog.String("store_kind", string(KindLocal)))
		return Handle{Kind: KindLocal, Store: NewMemoryStore(cfg.Memory, c)}
	}

	if cfg.Redis.Addr == "" {
		return local("shared store not configured")
	}

	client, err := NewRedisClient(cfg.Redis)
	if err != nil {
		return local(err.Error())
	}

	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	shared := NewRedisStore(client, cfg.Redis)
	if err := shared.Ping(probeCtx); err != nil {
		_ = shared.Close()
		logger.Error("shared counter store probe failed", slog.Any("error", err))
		return local("shared store unreachable")
	}

	maxSkew := cfg.MaxClockSkew
	if maxSkew <= 0 {
		maxSkew = defaultMaxClockSkew
	}
	if skew, err := shared.ClockSkew(probeCtx, c.Now()); err != nil {
		logger.Warn("could not read shared store clock", slog.Any("error", err))
	} else if SkewExceeds(skew, maxSkew) {
		logger.Warn("clock differs from shared store; windows will drift between instances",
			slog.Duration("skew", skew),
			slog.Duration("max_skew", maxSkew))
	}

	logger.Info("shared counter store selected", slog.String("store_kind", string(KindShared)))
	return Handle{Kind: KindShared, Store: shared}
}

// SkewExceeds reports whether skew, in either direction, is beyond limit.
func SkewExceeds(skew, limit time.Duration) bool {
	if skew < 0 {
		skew = -skew
	}
	return skew > limit
}
