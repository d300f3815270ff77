package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testcontainers "github.com/testcontainers/testcontainers-go"
	rediscontainer "github.com/testcontainers/testcontainers-go/modules/redis"
)

func newRedisStoreForTest(t *testing.T) *RedisStore {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := rediscontainer.RunContainer(ctx, testcontainers.WithImage("redis:7.2-alpine"))
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	cfg := RedisConfig{Addr: host + ":" + port.Port(), OpTimeout: 2 * time.Second}
	client, err := NewRedisClient(cfg)
	require.NoError(t, err)

	s := NewRedisStore(client, cfg)
	require.NoError(t, s.Ping(ctx))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRedisStore_AdmitAllowDeny(t *testing.T) {
	s := newRedisStoreForTest(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		adm, err := s.Admit(ctx, "u1", now.Add(time.Duration(i)*time.Millisecond), 2*time.Second, 3)
		require.NoError(t, err)
		assert.True(t, adm.Allowed)
		assert.Equal(t, i+1, adm.Count)
	}

	adm, err := s.Admit(ctx, "u1", now.Add(10*time.Millisecond), 2*time.Second, 3)
	require.NoError(t, err)
	assert.False(t, adm.Allowed)
	assert.Equal(t, now.UnixMilli(), adm.Earliest.UnixMilli())

	adm, err = s.Admit(ctx, "u1", now.Add(2*time.Second+5*time.Millisecond), 2*time.Second, 3)
	require.NoError(t, err)
	assert.True(t, adm.Allowed, "oldest entries aged out")
}

// Two checks at count = max-1 must produce exactly one admit.
func TestRedisStore_ConcurrentAdmitAtBoundary(t *testing.T) {
	s := newRedisStoreForTest(t)
	ctx := context.Background()
	now := time.Now()

	const max = 5
	for i := 0; i < max-1; i++ {
		adm, err := s.Admit(ctx, "race", now, time.Minute, max)
		require.NoError(t, err)
		require.True(t, adm.Allowed)
	}

	for round := 0; round < 20; round++ {
		key := "race"
		if round > 0 {
			key = fmt.Sprintf("race-%d", round)
			for i := 0; i < max-1; i++ {
				_, err := s.Admit(ctx, key, now, time.Minute, max)
				require.NoError(t, err)
			}
		}

		var wg sync.WaitGroup
		results := make([]bool, 2)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				adm, err := s.Admit(ctx, key, now, time.Minute, max)
				if err == nil {
					results[i] = adm.Allowed
				}
			}(i)
		}
		wg.Wait()

		admitted := 0
		for _, ok := range results {
			if ok {
				admitted++
			}
		}
		assert.Equal(t, 1, admitted, "round %d", round)
	}
}

func TestRedisStore_AppendGetPrune(t *testing.T) {
	s := newRedisStoreForTest(t)
	ctx := context.Background()
	base := time.UnixMilli(time.Now().UnixMilli())

	require.NoError(t, s.Append(ctx, "hist", base))
	require.NoError(t, s.Append(ctx, "hist", base.Add(time.Second)))
	require.NoError(t, s.Append(ctx, "hist", base.Add(2*time.Second)))

	got, err := s.Get(ctx, "hist")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].Equal(base))

	remaining, err := s.Prune(ctx, "hist", base.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
}

func TestRedisStore_ClockSkew(t *testing.T) {
	s := newRedisStoreForTest(t)

	skew, err := s.ClockSkew(context.Background(), time.Now())
	require.NoError(t, err)
	assert.False(t, SkewExceeds(skew, 5*time.Second), "container clock off by %s", skew)

	behind, err := s.ClockSkew(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, SkewExceeds(behind, 5*time.Second))
	assert.Greater(t, behind, 59*time.Minute)
}
