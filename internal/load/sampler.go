package load

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"runtime/debug"
	"runtime/metrics"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BradenHooton/marketguard/internal/clock"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

const (
	defaultMinInterval = time.Second
	heapLiveMetric     = "/gc/heap/live:bytes"
)

// Sample is one reading of process pressure.
type Sample struct {
	CPU  float64 // process CPU time over wall time, per core
	Heap float64 // live heap over memory limit
	At   time.Time
}

// Source supplies the raw signals a Sampler turns into ratios.
type Source interface {
	CPUTime() (time.Duration, error)
	HeapBytes() uint64
	MemoryLimit() uint64
}

// SamplerConfig tunes a Sampler.
type SamplerConfig struct {
	// MinInterval is how long a sample is reused before the signals are read again.
	MinInterval time.Duration
}

// Sampler caches Samples so the request path never waits on a reading.
// A caller that finds a refresh in progress gets the previous sample.
type Sampler struct {
	src         Source
	clock       clock.Clock
	minInterval time.Duration
	numCPU      float64

	refresh  sync.Mutex
	cached   atomic.Pointer[Sample]
	lastCPU  time.Duration
	lastWall time.Time
}

// NewSampler samples the current process through gopsutil and the Go runtime.
func NewSampler(cfg SamplerConfig, c clock.Clock) (*Sampler, error) {
	src, err := NewProcessSource()
	if err != nil {
		return nil, err
	}
	return NewSamplerWithSource(src, cfg, c), nil
}

// NewSamplerWithSource builds a Sampler over src.
func NewSamplerWithSource(src Source, cfg SamplerConfig, c clock.Clock) *Sampler {
	if c == nil {
		c = clock.Real{}
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = defaultMinInterval
	}
	s := &Sampler{
		src:         src,
		clock:       c,
		minInterval: cfg.MinInterval,
		numCPU:      float64(runtime.NumCPU()),
	}
	s.lastWall = c.Now()
	if cpu, err := src.CPUTime(); err == nil {
		s.lastCPU = cpu
	}
	s.cached.Store(&Sample{At: s.lastWall})
	return s
}

// Sample returns the latest reading, refreshing it when older than MinInterval.
func (s *Sampler) Sample() Sample {
	cur := s.cached.Load()
	now := s.clock.Now()
	if now.Sub(cur.At) < s.minInterval {
		return *cur
	}
	if !s.refresh.TryLock() {
		return *cur
	}
	defer s.refresh.Unlock()

	next := Sample{At: now, CPU: cur.CPU}
	if cpu, err := s.src.CPUTime(); err == nil {
		if wall := now.Sub(s.lastWall); wall > 0 {
			next.CPU = float64(cpu-s.lastCPU) / float64(wall) / s.numCPU
		}
		s.lastCPU = cpu
		s.lastWall = now
	}
	if limit := s.src.MemoryLimit(); limit > 0 {
		next.Heap = float64(s.src.HeapBytes()) / float64(limit)
	}

	s.cached.Store(&next)
	return next
}

// ProcessSource reads the running process.
type ProcessSource struct {
	proc        *process.Process
	physical    uint64
	heapSamples []metrics.Sample
	mu          sync.Mutex
}

// NewProcessSource resolves the current process and physical memory size.
func NewProcessSource() (*ProcessSource, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to open process: %w", err)
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to read physical memory: %w", err)
	}
	return &ProcessSource{
		proc:        proc,
		physical:    vm.Total,
		heapSamples: []metrics.Sample{{Name: heapLiveMetric}},
	}, nil
}

func (p *ProcessSource) CPUTime() (time.Duration, error) {
	times, err := p.proc.Times()
	if err != nil {
		return 0, err
	}
	return time.Duration((times.User + times.System) * float64(time.Second)), nil
}

func (p *ProcessSource) HeapBytes() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	metrics.Read(p.heapSamples)
	if p.heapSamples[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return p.heapSamples[0].Value.Uint64()
}

// MemoryLimit is the Go soft memory limit when one is set, else physical memory.
func (p *ProcessSource) MemoryLimit() uint64 {
	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit != math.MaxInt64 {
		return uint64(limit)
	}
	return p.physical
}
