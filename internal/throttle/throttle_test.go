package throttle_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/BradenHooton/marketguard/internal/models"
	"github.com/BradenHooton/marketguard/internal/store"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockCounterStore is a CounterStore whose behaviour is set per test.
type MockCounterStore struct {
	AdmitFunc func(ctx context.Context, key string, now time.Time, window time.Duration, max int) (store.Admission, error)
	Keys      []string
}

func (m *MockCounterStore) Get(ctx context.Context, key string) ([]time.Time, error) {
	return nil, nil
}

func (m *MockCounterStore) Append(ctx context.Context, key string, ts time.Time) error {
	return nil
}

func (m *MockCounterStore) Prune(ctx context.Context, key string, before time.Time) (int, error) {
	return 0, nil
}

func (m *MockCounterStore) Admit(ctx context.Context, key string, now time.Time, window time.Duration, max int) (store.Admission, error) {
	m.Keys = append(m.Keys, key)
	if m.AdmitFunc != nil {
		return m.AdmitFunc(ctx, key, now, window, max)
	}
	return store.Admission{Allowed: true, Count: 1, Earliest: now}, nil
}

func (m *MockCounterStore) Kind() store.Kind { return store.KindShared }

func (m *MockCounterStore) Close() error { return nil }

func unavailableStore() *MockCounterStore {
	return &MockCounterStore{
		AdmitFunc: func(ctx context.Context, key string, now time.Time, window time.Duration, max int) (store.Admission, error) {
			return store.Admission{}, errors.Join(models.ErrStoreUnavailable, errors.New("dial tcp: connection refused"))
		},
	}
}
