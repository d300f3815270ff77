package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/BradenHooton/marketguard/internal/clock"
	"github.com/BradenHooton/marketguard/internal/store"
	"github.com/BradenHooton/marketguard/internal/throttle"
)

func newSimulateCmd() *cobra.Command {
	var (
		policyName string
		requests   int
		interval   time.Duration
		ip         string
		userID     string
		window     time.Duration
		limit      int
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay requests against a policy on a virtual clock",
		Long: `Sends a sequence of requests from one client through the sliding window
limiter using a virtual clock, so a 15 minute policy can be checked in
milliseconds. Policy defaults come from the built-in registry; --window
and --max override them the same way POLICY_<NAME>_* does for the server.`,
		Example: `  guardctl simulate --policy admin_login --requests 8
  guardctl simulate --policy orders --requests 15 --interval 5s --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides := map[string]throttle.Override{policyName: {Window: window, Max: limit}}
			registry, err := throttle.NewDefaultRegistry(overrides)
			if err != nil {
				return err
			}
			p, ok := registry.Get(policyName)
			if !ok {
				return fmt.Errorf("unknown policy %q (known: %v)", policyName, registry.Names())
			}

			result := runSimulation(p, throttle.Identity{IP: ip, UserID: userID}, requests, interval)
			if outputJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			printSimulation(cmd.OutOrStdout(), &result)
			return nil
		},
	}

	cmd.Flags().StringVar(&policyName, "policy", throttle.PolicyGeneral, "policy name")
	cmd.Flags().IntVar(&requests, "requests", 10, "number of requests to send")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "virtual time between requests")
	cmd.Flags().StringVar(&ip, "ip", "203.0.113.10", "client IP")
	cmd.Flags().StringVar(&userID, "user", "", "authenticated user id")
	cmd.Flags().DurationVar(&window, "window", 0, "override the policy window")
	cmd.Flags().IntVar(&limit, "max", 0, "override the policy max")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output results as JSON")

	return cmd
}

// SimulationResult is the full output of a simulate run.
type SimulationResult struct {
	Policy   string           `json:"policy"`
	Key      string           `json:"key"`
	Window   string           `json:"window"`
	Max      int              `json:"max"`
	Steps    []SimulationStep `json:"steps"`
	Allowed  int              `json:"allowed"`
	Rejected int              `json:"rejected"`
}

// SimulationStep is one request of the run.
type SimulationStep struct {
	Offset     string `json:"offset"`
	Allowed    bool   `json:"allowed"`
	Remaining  int    `json:"remaining"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func runSimulation(p throttle.Policy, id throttle.Identity, requests int, interval time.Duration) SimulationResult {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	vc := clock.NewManual(start)
	handle := store.Handle{Kind: store.KindLocal, Store: store.NewMemoryStore(store.MemoryConfig{}, vc)}
	lim := throttle.NewLimiter(handle, vc, throttle.LimiterConfig{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	result := SimulationResult{
		Policy: p.Name,
		Key:    p.CounterKey(id),
		Window: p.Window.String(),
		Max:    p.Max,
	}

	ctx := context.Background()
	for i := 0; i < requests; i++ {
		if i > 0 {
			vc.Advance(interval)
		}
		d, err := lim.Admit(ctx, id, p)
		step := SimulationStep{
			Offset:    vc.Now().Sub(start).String(),
			Allowed:   err == nil,
			Remaining: d.Remaining,
		}
		if err == nil {
			result.Allowed++
		} else {
			step.RetryAfter = d.RetryAfterSeconds()
			result.Rejected++
		}
		result.Steps = append(result.Steps, step)
	}

	return result
}

func printSimulation(out io.Writer, r *SimulationResult) {
	fmt.Fprintf(out, "policy %s: %d per %s, key %s\n\n", r.Policy, r.Max, r.Window, r.Key)
	for i, s := range r.Steps {
		if s.Allowed {
			fmt.Fprintf(out, "  #%03d +%-8s ALLOW remaining=%d\n", i+1, s.Offset, s.Remaining)
		} else {
			fmt.Fprintf(out, "  #%03d +%-8s DENY  retry_after=%ds\n", i+1, s.Offset, s.RetryAfter)
		}
	}
	fmt.Fprintf(out, "\n%d allowed, %d rejected\n", r.Allowed, r.Rejected)
}
