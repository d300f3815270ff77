package store

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/marketguard/internal/clock"
)

const (
	defaultSweepEvery = 1000
	defaultRetention  = time.Hour
)

// MemoryConfig configures a MemoryStore.
type MemoryConfig struct {
	// SweepEvery triggers a full sweep after this many mutating operations.
	SweepEvery int
	// Retention is the window assumed for keys only ever written through Append.
	Retention time.Duration
}

// MemoryStore is the in-process CounterStore.
//
// The check-then-append in Admit runs under one mutex, so the admission race
// of a shared store cannot occur here. Memory is bounded by a counted-trigger
// sweep plus whatever schedule calls Sweep.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	clock   clock.Clock

	sweepEvery int
	retention  time.Duration
	ops        int
}

type memEntry struct {
	stamps []time.Time // ordered oldest first
	window time.Duration
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore(cfg MemoryConfig, c clock.Clock) *MemoryStore {
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = defaultSweepEvery
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	if c == nil {
		c = clock.Real{}
	}
	return &MemoryStore{
		entries:    make(map[string]*memEntry),
		clock:      c,
		sweepEvery: cfg.SweepEvery,
		retention:  cfg.Retention,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	out := make([]time.Time, len(e.stamps))
	copy(out, e.stamps)
	return out, nil
}

func (s *MemoryStore) Append(_ context.Context, key string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(key, s.retention)
	// Keep order even if callers append out of sequence.
	i := len(e.stamps)
	for i > 0 && e.stamps[i-1].After(ts) {
		i--
	}
	e.stamps = append(e.stamps, time.Time{})
	copy(e.stamps[i+1:], e.stamps[i:])
	e.stamps[i] = ts

	s.tickLocked(s.clock.Now())
	return nil
}

func (s *MemoryStore) Prune(_ context.Context, key string, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return 0, nil
	}
	e.stamps = pruneAfter(e.stamps, before)
	n := len(e.stamps)
	if n == 0 {
		delete(s.entries, key)
	}

	s.tickLocked(s.clock.Now())
	return n, nil
}

func (s *MemoryStore) Admit(_ context.Context, key string, now time.Time, window time.Duration, max int) (Admission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(key, window)
	if window > e.window {
		e.window = window
	}
	e.stamps = pruneAfter(e.stamps, now.Add(-window))

	adm := Admission{}
	if len(e.stamps) < max {
		e.stamps = append(e.stamps, now)
		adm.Allowed = true
	}
	adm.Count = len(e.stamps)
	if adm.Count > 0 {
		adm.Earliest = e.stamps[0]
	} else {
		// max <= 0 rejects everything; don't keep an empty key around.
		delete(s.entries, key)
	}

	s.tickLocked(now)
	return adm, nil
}

func (s *MemoryStore) Kind() Kind {
	return KindLocal
}

func (s *MemoryStore) Close() error {
	return nil
}

// Sweep removes stale timestamps from every key and evicts keys left empty.
// It returns the number of evicted keys.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(now)
}

// Len returns the number of keys currently held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) entryLocked(key string, window time.Duration) *memEntry {
	e, ok := s.entries[key]
	if !ok {
		e = &memEntry{window: window}
		s.entries[key] = e
	}
	return e
}

func (s *MemoryStore) tickLocked(now time.Time) {
	s.ops++
	if s.ops >= s.sweepEvery {
		s.ops = 0
		s.sweepLocked(now)
	}
}

func (s *MemoryStore) sweepLocked(now time.Time) int {
	evicted := 0
	for key, e := range s.entries {
		e.stamps = pruneAfter(e.stamps, now.Add(-e.window))
		if len(e.stamps) == 0 {
			delete(s.entries, key)
			evicted++
		}
	}
	return evicted
}

// pruneAfter keeps the timestamps strictly after cutoff. stamps must be ordered.
func pruneAfter(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[i:]...)
}
