package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/marketguard/internal/auth"
	"github.com/BradenHooton/marketguard/internal/background"
	"github.com/BradenHooton/marketguard/internal/clock"
	"github.com/BradenHooton/marketguard/internal/config"
	"github.com/BradenHooton/marketguard/internal/database"
	"github.com/BradenHooton/marketguard/internal/gateway"
	"github.com/BradenHooton/marketguard/internal/handlers"
	"github.com/BradenHooton/marketguard/internal/heuristic"
	"github.com/BradenHooton/marketguard/internal/load"
	"github.com/BradenHooton/marketguard/internal/metrics"
	"github.com/BradenHooton/marketguard/internal/middleware"
	"github.com/BradenHooton/marketguard/internal/models"
	"github.com/BradenHooton/marketguard/internal/repositories"
	"github.com/BradenHooton/marketguard/internal/routes"
	"github.com/BradenHooton/marketguard/internal/services"
	"github.com/BradenHooton/marketguard/internal/store"
	"github.com/BradenHooton/marketguard/internal/throttle"
	pkghttp "github.com/BradenHooton/marketguard/pkg/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	c := clock.Real{}
	m := metrics.New()

	// Counter store: probed once, never re-probed
	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	handle := store.Select(startCtx, store.SelectConfig{
		Redis: store.RedisConfig{
			Addr:            cfg.Redis.Addr,
			Password:        cfg.Redis.Password,
			DB:              cfg.Redis.DB,
			PoolSize:        cfg.Redis.PoolSize,
			DialTimeout:     cfg.Redis.DialTimeout,
			OpTimeout:       cfg.Redis.OpTimeout,
			BreakerFailures: uint32(cfg.Redis.BreakerFailures),
			BreakerTimeout:  cfg.Redis.BreakerTimeout,
		},
		Memory:       store.MemoryConfig{SweepEvery: cfg.RateLimit.SweepEvery},
		ProbeTimeout: cfg.Redis.ProbeTimeout,
		MaxClockSkew: cfg.Redis.MaxClockSkew,
	}, c, logger)
	cancel()
	defer handle.Store.Close()
	m.SetStoreKind(string(handle.Kind))

	// Throttling chain
	registry, err := throttle.NewDefaultRegistry(policyOverrides(cfg.RateLimit.Overrides))
	if err != nil {
		logger.Error("invalid policy configuration", slog.Any("error", err))
		os.Exit(1)
	}
	limiter := throttle.NewLimiter(handle, c, throttle.LimiterConfig{EvalTimeout: cfg.RateLimit.EvalTimeout}, m, logger)

	var screener middleware.Screener
	if cfg.Heuristic.Enabled {
		screener = heuristic.New(handle, c, heuristic.Config{
			BurstWindow: cfg.Heuristic.BurstWindow,
			BurstMax:    cfg.Heuristic.BurstMax,
			Patterns:    cfg.Heuristic.Patterns,
			Allowlist:   cfg.Heuristic.Allowlist,
			EvalTimeout: cfg.RateLimit.EvalTimeout,
		}, m, logger)
	}

	var adjuster middleware.PolicyAdjuster
	if cfg.Load.Enabled {
		sampler, err := load.NewSampler(load.SamplerConfig{MinInterval: cfg.Load.MinInterval}, c)
		if err != nil {
			logger.Warn("load sampling unavailable, adaptive throttling disabled", slog.Any("error", err))
		} else {
			adjuster = load.NewAdaptive(sampler, load.AdaptiveConfig{
				Enabled:       true,
				CPUThreshold:  cfg.Load.CPUThreshold,
				HeapThreshold: cfg.Load.HeapThreshold,
				Factor:        cfg.Load.Factor,
			}, m, logger)
		}
	}
	throttler := middleware.NewThrottler(screener, adjuster, limiter, logger)

	// Login guard persistence: Postgres when configured, process memory otherwise
	var (
		attemptRepo   services.LoginGuardRepository
		challengeRepo services.ChallengeRepository
		sessionRepo   services.SessionRepository
		healthDB      handlers.HealthChecker
	)
	if cfg.Database.Enabled {
		db, err := database.NewConnection(&cfg.Database, logger)
		if err != nil {
			logger.Error("failed to connect to database", slog.Any("error", err))
			os.Exit(1)
		}
		defer db.Close()

		if cfg.Database.AutoMigrate {
			migrateCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			err := db.MigrateUp(migrateCtx)
			cancel()
			if err != nil {
				logger.Error("failed to migrate database", slog.Any("error", err))
				os.Exit(1)
			}
		}

		attemptRepo = repositories.NewLoginGuardRepository(db)
		challengeRepo = repositories.NewChallengeRepository(db)
		sessionRepo = repositories.NewSessionRepository(db)
		healthDB = db
		m.WatchPool(db.PoolStats)
	} else {
		logger.Warn("DB_HOST not set, login guard state is process-local")
		attemptRepo = repositories.NewMemoryLoginGuardRepository()
		challengeRepo = repositories.NewMemoryChallengeRepository()
		sessionRepo = repositories.NewMemorySessionRepository()
	}

	// Admin authentication
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, c)
	guard := services.NewLoginGuard(
		attemptRepo,
		challengeRepo,
		auth.NewChallengeCodes("marketguard", cfg.LoginGuard.CodeHashCost),
		c,
		services.LoginGuardConfig{
			Threshold:       cfg.LoginGuard.Threshold,
			Window:          cfg.LoginGuard.Window,
			LockoutDuration: cfg.LoginGuard.LockoutDuration,
			HistorySize:     cfg.LoginGuard.HistorySize,
			CodeTTL:         cfg.LoginGuard.CodeTTL,
		},
		m,
		logger,
	)
	sessionService := services.NewSessionService(sessionRepo, tokenManager, c, cfg.Auth.SessionTTL, logger)

	if cfg.Admin.Email == "" {
		logger.Warn("ADMIN_EMAIL not set, admin login is disabled")
	}
	directory := services.NewStaticAdminDirectory(models.AdminUser{
		ID:               cfg.Admin.ID,
		Email:            cfg.Admin.Email,
		Name:             cfg.Admin.Name,
		TwoFactorEnabled: cfg.Admin.TwoFactor,
	}, cfg.Admin.PasswordHash)

	codeSender := services.NewLogCodeSender(logger, cfg.Admin.LogCodes && cfg.Server.Env != "production")
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay:   cfg.LoginGuard.FailureDelay,
		RandomDelay: cfg.LoginGuard.FailureDelay / 2,
	})
	adminAuthService := services.NewAdminAuthService(guard, directory, sessionService, codeSender, timingDelay, logger)

	// Storefront upstream
	var upstream http.Handler
	if cfg.Server.UpstreamURL != "" {
		proxy, err := gateway.NewUpstream(gateway.Config{
			URL:            cfg.Server.UpstreamURL,
			ResponseHeader: cfg.Server.UpstreamTimeout,
		}, logger)
		if err != nil {
			logger.Error("invalid upstream configuration", slog.Any("error", err))
			os.Exit(1)
		}
		upstream = proxy
	}

	ipResolver, err := pkghttp.NewIPResolver(pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies})
	if err != nil {
		logger.Error("invalid trusted proxy configuration", slog.Any("error", err))
		os.Exit(1)
	}

	var corsConfig *middleware.CORSConfig
	if len(cfg.Server.AllowedOrigins) > 0 {
		corsConfig = middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins)
	}

	router := routes.NewRouter(routes.Deps{
		Registry:       registry,
		Throttler:      throttler,
		Tokens:         tokenManager,
		Sessions:       sessionService,
		AdminAuth:      handlers.NewAdminAuthHandler(adminAuthService, sessionService, logger),
		Health:         handlers.NewHealthHandler(string(handle.Kind), healthDB),
		Metrics:        m.Handler(),
		IPResolver:     ipResolver,
		Upstream:       upstream,
		CORS:           corsConfig,
		Env:            cfg.Server.Env,
		MetricsPerMin:  cfg.Server.MetricsPerMin,
		RequestTimeout: cfg.Server.WriteTimeout,
		Logger:         logger,
	})

	// Background cleanup
	managers := []*background.CleanupManager{
		background.NewCleanupManager(logger, cfg.LoginGuard.CleanupInterval,
			background.Task{Name: "login_guard", Run: guard.Cleanup},
			background.Task{Name: "admin_sessions", Run: sessionService.Cleanup},
		),
	}
	if local, ok := handle.Store.(*store.MemoryStore); ok {
		managers = append(managers, background.NewCleanupManager(logger, cfg.RateLimit.SweepInterval,
			background.Task{Name: "counter_keys", Run: func(context.Context) (int64, error) {
				return int64(local.Sweep(c.Now())), nil
			}},
		))
	}

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	for _, mgr := range managers {
		go mgr.Start(cleanupCtx)
	}

	// Start server
	go func() {
		logger.Info("starting server",
			slog.String("addr", server.Addr),
			slog.String("store_kind", string(handle.Kind)),
			slog.Bool("upstream", upstream != nil))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	for _, mgr := range managers {
		mgr.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func policyOverrides(in map[string]config.PolicyOverride) map[string]throttle.Override {
	out := make(map[string]throttle.Override, len(in))
	for name, o := range in {
		out[name] = throttle.Override{Window: o.Window, Max: o.Max}
	}
	return out
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
