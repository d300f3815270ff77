package store

import (
	"context"
	"time"
)

// Kind identifies which CounterStore implementation a process is running with.
type Kind string

const (
	// KindShared is durable and correct across multiple process instances.
	KindShared Kind = "shared"
	// KindLocal is an in-process map, correct only for a single process.
	KindLocal Kind = "local"
)

// Admission is the result of an atomic admission check.
type Admission struct {
	Allowed  bool
	Count    int       // timestamps in window after the check
	Earliest time.Time // earliest timestamp still in window; zero if none
}

// CounterStore holds per-key sliding-window event timestamps.
//
// Admit is the critical section: prune, compare and append happen as one
// atomic step so two concurrent checks at count = max-1 never both pass.
type CounterStore interface {
	// Get returns the timestamps currently held for key, oldest first.
	Get(ctx context.Context, key string) ([]time.Time, error)

	// Append records one event at ts.
	Append(ctx context.Context, key string, ts time.Time) error

	// Prune drops timestamps at or before the cutoff and returns how many remain.
	Prune(ctx context.Context, key string, before time.Time) (int, error)

	// Admit prunes entries older than now-window and, if fewer than max
	// remain, appends now and allows.
	Admit(ctx context.Context, key string, now time.Time, window time.Duration, max int) (Admission, error)

	// Kind reports the implementation kind.
	Kind() Kind

	// Close releases resources. It is idempotent.
	Close() error
}

// Handle is the typed store selected once at startup and injected into every limiter.
type Handle struct {
	Kind  Kind
	Store CounterStore
}

// Ensure interface compliance at compile time.
var (
	_ CounterStore = (*MemoryStore)(nil)
	_ CounterStore = (*RedisStore)(nil)
)
