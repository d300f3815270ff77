package load

import (
	"log/slog"

	"github.com/BradenHooton/marketguard/internal/metrics"
	"github.com/BradenHooton/marketguard/internal/throttle"
)

const (
	defaultCPUThreshold  = 0.85
	defaultHeapThreshold = 0.85
	defaultFactor        = 0.5
)

// AdaptiveConfig holds the pressure thresholds and how hard to tighten.
type AdaptiveConfig struct {
	Enabled       bool
	CPUThreshold  float64
	HeapThreshold float64
	Factor        float64
}

// SampleSource is anything that produces load samples.
type SampleSource interface {
	Sample() Sample
}

// Adaptive substitutes a stricter policy while the process is under pressure.
// It is per-process self protection, not a cluster-wide guarantee.
type Adaptive struct {
	sampler SampleSource
	cfg     AdaptiveConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewAdaptive(sampler SampleSource, cfg AdaptiveConfig, m *metrics.Metrics, logger *slog.Logger) *Adaptive {
	if cfg.CPUThreshold <= 0 {
		cfg.CPUThreshold = defaultCPUThreshold
	}
	if cfg.HeapThreshold <= 0 {
		cfg.HeapThreshold = defaultHeapThreshold
	}
	if cfg.Factor <= 0 || cfg.Factor >= 1 {
		cfg.Factor = defaultFactor
	}
	return &Adaptive{
		sampler: sampler,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With(slog.String("component", "adaptive_throttle")),
	}
}

// Effective returns the policy to evaluate and whether it was tightened.
func (a *Adaptive) Effective(p throttle.Policy) (throttle.Policy, bool) {
	if a == nil || !a.cfg.Enabled || a.sampler == nil {
		return p, false
	}

	s := a.sampler.Sample()
	a.metrics.SetLoad(s.CPU, s.Heap)
	if s.CPU <= a.cfg.CPUThreshold && s.Heap <= a.cfg.HeapThreshold {
		return p, false
	}

	tight := p.Tighten(a.cfg.Factor)
	a.metrics.ObserveTightened(p.Name)
	a.logger.Debug("policy tightened under load",
		slog.String("policy", p.Name),
		slog.Int("max", tight.Max),
		slog.Float64("cpu", s.CPU),
		slog.Float64("heap", s.Heap))
	return tight, true
}
