package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/BradenHooton/marketguard/internal/config"
	"github.com/BradenHooton/marketguard/internal/database"
	"github.com/BradenHooton/marketguard/internal/store"
)

func newProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check the configured counter store and database",
		Long: `Runs the same startup probe the server uses and reports which counter
store the server would select. Exits non-zero when a configured
dependency is unreachable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runProbe(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
	return cmd
}

func runProbe(ctx context.Context, out io.Writer, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var failed bool

	if cfg.Redis.Addr == "" {
		fmt.Fprintln(out, "counter store: local (REDIS_ADDR not set)")
	} else {
		client, err := store.NewRedisClient(store.RedisConfig{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			return err
		}
		shared := store.NewRedisStore(client, store.RedisConfig{OpTimeout: cfg.Redis.ProbeTimeout})
		defer shared.Close()

		start := time.Now()
		probeCtx, cancel := context.WithTimeout(ctx, cfg.Redis.ProbeTimeout)
		err = shared.Ping(probeCtx)
		cancel()
		if err != nil {
			failed = true
			fmt.Fprintf(out, "counter store: shared %s UNREACHABLE (%v); server would fall back to local\n", cfg.Redis.Addr, err)
		} else {
			fmt.Fprintf(out, "counter store: shared %s ok (%s)\n", cfg.Redis.Addr, time.Since(start).Round(time.Millisecond))

			maxSkew := cfg.Redis.MaxClockSkew
			if maxSkew <= 0 {
				maxSkew = 500 * time.Millisecond
			}
			skewCtx, cancel := context.WithTimeout(ctx, cfg.Redis.ProbeTimeout)
			skew, err := shared.ClockSkew(skewCtx, time.Now())
			cancel()
			switch {
			case err != nil:
				fmt.Fprintf(out, "counter store clock: unreadable (%v)\n", err)
			case store.SkewExceeds(skew, maxSkew):
				failed = true
				fmt.Fprintf(out, "counter store clock: skew %s exceeds %s; sync instance clocks\n", skew.Round(time.Millisecond), maxSkew)
			default:
				fmt.Fprintf(out, "counter store clock: skew %s\n", skew.Round(time.Millisecond))
			}
		}
	}

	if !cfg.Database.Enabled {
		fmt.Fprintln(out, "database: disabled (DB_HOST not set)")
	} else {
		db, err := database.NewConnection(&cfg.Database, slog.New(slog.NewTextHandler(io.Discard, nil)))
		if err != nil {
			failed = true
			fmt.Fprintf(out, "database: %s UNREACHABLE (%v)\n", cfg.Database.Host, err)
		} else {
			defer db.Close()
			hcCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = db.HealthCheck(hcCtx)
			cancel()
			if err != nil {
				failed = true
				fmt.Fprintf(out, "database: %s unhealthy (%v)\n", cfg.Database.Host, err)
			} else {
				fmt.Fprintf(out, "database: %s ok\n", cfg.Database.Host)
			}
		}
	}

	if failed {
		return fmt.Errorf("one or more dependencies are unreachable")
	}
	return nil
}

func stderrLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}
