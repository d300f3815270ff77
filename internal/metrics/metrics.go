package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marketguard"

// Throttle decision outcomes.
const (
	OutcomeAllowed    = "allowed"
	OutcomeRejected   = "rejected"
	OutcomeFailOpen   = "fail_open"
	OutcomeFailClosed = "fail_closed"
)

// Heuristic block reasons.
const (
	ReasonUserAgent = "user_agent"
	ReasonBurst     = "burst"
)

// Login guard events.
const (
	EventFailure          = "failure"
	EventSuccess          = "success"
	EventLockout          = "lockout"
	EventLockedReject     = "locked_reject"
	EventChallengeIssued  = "challenge_issued"
	EventChallengeInvalid = "challenge_invalid"
	EventChallengeExpired = "challenge_expired"
)

// Metrics holds every collector the service exports. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	decisions  *prometheus.CounterVec
	heuristic  *prometheus.CounterVec
	tightened  *prometheus.CounterVec
	loginGuard *prometheus.CounterVec
	storeKind  *prometheus.GaugeVec
	loadCPU    prometheus.Gauge
	loadHeap   prometheus.Gauge
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttle_decisions_total",
			Help:      "Sliding window admission decisions by policy and outcome",
		}, []string{"policy", "outcome"}),
		heuristic: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heuristic_blocks_total",
			Help:      "Requests rejected by the heuristic filter",
		}, []string{"reason"}),
		tightened: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adaptive_tightened_total",
			Help:      "Requests evaluated against a tightened policy because of process load",
		}, []string{"policy"}),
		loginGuard: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_guard_events_total",
			Help:      "Admin login guard events",
		}, []string{"event"}),
		storeKind: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "counter_store_info",
			Help:      "Counter store selected at startup (1 for the active kind)",
		}, []string{"kind"}),
		loadCPU: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "load_cpu_ratio",
			Help:      "Last sampled process CPU utilisation (0..1 per core)",
		}),
		loadHeap: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "load_heap_ratio",
			Help:      "Last sampled live heap over memory limit",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveDecision(policy, outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(policy, outcome).Inc()
}

func (m *Metrics) ObserveHeuristicBlock(reason string) {
	if m == nil {
		return
	}
	m.heuristic.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveTightened(policy string) {
	if m == nil {
		return
	}
	m.tightened.WithLabelValues(policy).Inc()
}

func (m *Metrics) ObserveLoginGuard(event string) {
	if m == nil {
		return
	}
	m.loginGuard.WithLabelValues(event).Inc()
}

// SetStoreKind marks kind as the active counter store.
func (m *Metrics) SetStoreKind(kind string) {
	if m == nil {
		return
	}
	m.storeKind.Reset()
	m.storeKind.WithLabelValues(kind).Set(1)
}

// WatchPool exports database pool gauges read from stats on every scrape.
func (m *Metrics) WatchPool(stats func() (acquired, idle, total int32)) {
	if m == nil || stats == nil {
		return
	}
	gauge := func(name, help string, pick func(a, i, t int32) int32) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(pick(stats()))
		})
	}
	m.registry.MustRegister(
		gauge("acquired_connections", "Connections currently in use", func(a, _, _ int32) int32 { return a }),
		gauge("idle_connections", "Idle connections in the pool", func(_, i, _ int32) int32 { return i }),
		gauge("total_connections", "Total connections in the pool", func(_, _, t int32) int32 { return t }),
	)
}

func (m *Metrics) SetLoad(cpu, heap float64) {
	if m == nil {
		return
	}
	m.loadCPU.Set(cpu)
	m.loadHeap.Set(heap)
}
