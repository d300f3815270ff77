package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BradenHooton/marketguard/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

const (
	defaultRedisPoolSize    = 20
	defaultRedisDialTimeout = 2 * time.Second
	defaultRedisOpTimeout   = 150 * time.Millisecond
	defaultBreakerTimeout   = 30 * time.Second
	defaultBreakerFailures  = 5

	redisKeyPrefix = "mg:rl:"
)

var admitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)

local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, member)
  count = count + 1
  allowed = 1
end

local earliest = -1
if count > 0 then
  redis.call('PEXPIRE', key, window)
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  if oldest ~= nil and #oldest >= 2 then
    earliest = tonumber(oldest[2])
  end
end

return {allowed, count, earliest}
`)

// RedisConfig configures the shared store.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration

	// OpTimeout bounds every store call so limiter evaluation finishes in bounded time.
	OpTimeout time.Duration
	// Retention is the TTL applied to keys written through Append.
	Retention time.Duration

	// BreakerFailures consecutive failures open the circuit for BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// RedisStore is the shared CounterStore: one sorted set per key, scored by
// unix milliseconds. Admit is a single Lua round trip.
type RedisStore struct {
	client    redis.UniversalClient
	breaker   *gobreaker.CircuitBreaker
	opTimeout time.Duration
	retention time.Duration

	instance  string
	memberSeq atomic.Uint64

	closeOnce sync.Once
	closeErr  error
}

// NewRedisClient builds the go-redis client for cfg without contacting the server.
func NewRedisClient(cfg RedisConfig) (redis.UniversalClient, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaultRedisPoolSize
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultRedisDialTimeout
	}
	return redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
		MaxRetries:  1,
	}), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, cfg RedisConfig) *RedisStore {
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = defaultRedisOpTimeout
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = defaultBreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = defaultBreakerTimeout
	}

	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "counter-store",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
	})

	return &RedisStore{
		client:    client,
		breaker:   breaker,
		opTimeout: cfg.OpTimeout,
		retention: cfg.Retention,
		instance:  uuid.NewString()[:8],
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]time.Time, error) {
	res, err := s.do(ctx, func(ctx context.Context) (interface{}, error) {
		return s.client.ZRangeWithScores(ctx, redisKeyPrefix+key, 0, -1).Result()
	})
	if err != nil {
		return nil, err
	}

	members := res.([]redis.Z)
	if len(members) == 0 {
		return nil, nil
	}
	out := make([]time.Time, len(members))
	for i, z := range members {
		out[i] = time.UnixMilli(int64(z.Score))
	}
	return out, nil
}

func (s *RedisStore) Append(ctx context.Context, key string, ts time.Time) error {
	redisKey := redisKeyPrefix + key
	_, err := s.do(ctx, func(ctx context.Context) (interface{}, error) {
		return s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(ts.UnixMilli()), Member: s.member(ts)})
			pipe.PExpire(ctx, redisKey, s.retention)
			return nil
		})
	})
	return err
}

func (s *RedisStore) Prune(ctx context.Context, key string, before time.Time) (int, error) {
	redisKey := redisKeyPrefix + key
	var card *redis.IntCmd
	_, err := s.do(ctx, func(ctx context.Context) (interface{}, error) {
		return s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(before.UnixMilli(), 10))
			card = pipe.ZCard(ctx, redisKey)
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return int(card.Val()), nil
}

func (s *RedisStore) Admit(ctx context.Context, key string, now time.Time, window time.Duration, max int) (Admission, error) {
	windowMS := window.Milliseconds()
	if windowMS <= 0 {
		return Admission{}, fmt.Errorf("window must be at least 1ms, got %s", window)
	}

	res, err := s.do(ctx, func(ctx context.Context) (interface{}, error) {
		return admitScript.Run(ctx, s.client, []string{redisKeyPrefix + key},
			now.UnixMilli(), windowMS, max, s.member(now)).Result()
	})
	if err != nil {
		return Admission{}, err
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 3 {
		return Admission{}, fmt.Errorf("unexpected admit script result: %T", res)
	}
	allowed, err := asInt64(values[0])
	if err != nil {
		return Admission{}, fmt.Errorf("parsing allowed: %w", err)
	}
	count, err := asInt64(values[1])
	if err != nil {
		return Admission{}, fmt.Errorf("parsing count: %w", err)
	}
	earliest, err := asInt64(values[2])
	if err != nil {
		return Admission{}, fmt.Errorf("parsing earliest: %w", err)
	}

	adm := Admission{Allowed: allowed == 1, Count: int(count)}
	if earliest >= 0 {
		adm.Earliest = time.UnixMilli(earliest)
	}
	return adm, nil
}

func (s *RedisStore) Kind() Kind {
	return KindShared
}

// Ping checks connectivity outside the circuit breaker.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// ClockSkew returns the Redis server clock minus now. Entries are scored with
// the caller's clock, so instances sharing a store must agree on time.
func (s *RedisStore) ClockSkew(ctx context.Context, now time.Time) (time.Duration, error) {
	serverTime, err := s.client.Time(ctx).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return serverTime.Sub(now), nil
}

// Close releases Redis resources. It is idempotent.
func (s *RedisStore) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.client.Close()
	})
	return s.closeErr
}

// BreakerState exposes the circuit state for health reporting.
func (s *RedisStore) BreakerState() string {
	return s.breaker.State().String()
}

func (s *RedisStore) do(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	res, err := s.breaker.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit open", models.ErrStoreUnavailable)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return res, nil
}

func (s *RedisStore) member(ts time.Time) string {
	return fmt.Sprintf("%d-%s-%d", ts.UnixNano(), s.instance, s.memberSeq.Add(1))
}

func asInt64(v interface{}) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse int64 from %q: %w", x, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}
