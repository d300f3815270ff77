package repositories

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/marketguard/internal/models"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func attemptAt(account string, minute int, success bool) *models.LoginAttempt {
	return &models.LoginAttempt{
		AccountID: account,
		IPAddress: "203.0.113.7",
		Success:   success,
		Timestamp: t0.Add(time.Duration(minute) * time.Minute),
	}
}

func TestMemoryLoginGuard_HistoryIsBoundedAndNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryLoginGuardRepository()

	for i := 0; i < 12; i++ {
		require.NoError(t, repo.RecordAttempt(ctx, attemptAt("a@example.com", i, false), 10))
	}

	got, err := repo.RecentAttempts(ctx, "a@example.com", 50)
	require.NoError(t, err)
	require.Len(t, got, 10)
	assert.Equal(t, t0.Add(11*time.Minute), got[0].Timestamp)
	assert.Equal(t, t0.Add(2*time.Minute), got[9].Timestamp)
	assert.NotEmpty(t, got[0].ID)

	got, err = repo.RecentAttempts(ctx, "a@example.com", 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = repo.RecentAttempts(ctx, "nobody@example.com", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryLoginGuard_CreateLockoutNeverExtends(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryLoginGuardRepository()

	first := &models.Lockout{AccountID: "a", Start: t0, Duration: 30 * time.Minute}
	got, created, err := repo.CreateLockout(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, t0.Add(30*time.Minute), got.Until())

	second := &models.Lockout{AccountID: "a", Start: t0.Add(10 * time.Minute), Duration: 30 * time.Minute}
	got, created, err = repo.CreateLockout(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, t0.Add(30*time.Minute), got.Until())

	// once expired a new lockout replaces it
	third := &models.Lockout{AccountID: "a", Start: t0.Add(30 * time.Minute), Duration: 30 * time.Minute}
	got, created, err = repo.CreateLockout(ctx, third)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, t0.Add(60*time.Minute), got.Until())
}

func TestMemoryLoginGuard_GetLockoutAbsent(t *testing.T) {
	repo := NewMemoryLoginGuardRepository()
	l, err := repo.GetLockout(context.Background(), "a")
	require.NoError(t, err)
	assert.Nil(t, l)
}

func TestMemoryLoginGuard_ConcurrentLockoutCreatesOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryLoginGuardRepository()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l := &models.Lockout{AccountID: "a", Start: t0.Add(time.Duration(i) * time.Second), Duration: time.Hour}
			_, ok, err := repo.CreateLockout(ctx, l)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func TestMemoryLoginGuard_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryLoginGuardRepository()

	require.NoError(t, repo.RecordAttempt(ctx, attemptAt("a", 0, false), 10))
	require.NoError(t, repo.RecordAttempt(ctx, attemptAt("a", 20, false), 10))
	_, _, err := repo.CreateLockout(ctx, &models.Lockout{AccountID: "a", Start: t0, Duration: 30 * time.Minute})
	require.NoError(t, err)

	removed, err := repo.DeleteExpired(ctx, t0.Add(31*time.Minute), t0.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	l, err := repo.GetLockout(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, l)

	got, err := repo.RecentAttempts(ctx, "a", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMemoryChallenge_MarkUsedOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryChallengeRepository()

	c := &models.TwoFactorChallenge{ID: "c1", UserID: "u1", CodeHash: "h", CreatedAt: t0, ExpiresAt: t0.Add(10 * time.Minute)}
	require.NoError(t, repo.Put(ctx, c))

	ok, err := repo.MarkUsed(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkUsed(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, got.Used)
}

func TestMemoryChallenge_PutReplaces(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryChallengeRepository()

	require.NoError(t, repo.Put(ctx, &models.TwoFactorChallenge{ID: "old", UserID: "u1", ExpiresAt: t0.Add(time.Minute)}))
	require.NoError(t, repo.Put(ctx, &models.TwoFactorChallenge{ID: "new", UserID: "u1", ExpiresAt: t0.Add(time.Minute)}))

	ok, err := repo.MarkUsed(ctx, "u1", "old")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "new", got.ID)
}

func TestMemoryChallenge_GetMissing(t *testing.T) {
	_, err := NewMemoryChallengeRepository().Get(context.Background(), "u1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryChallenge_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryChallengeRepository()
	require.NoError(t, repo.Put(ctx, &models.TwoFactorChallenge{ID: "c1", UserID: "u1", ExpiresAt: t0}))
	require.NoError(t, repo.Put(ctx, &models.TwoFactorChallenge{ID: "c2", UserID: "u2", ExpiresAt: t0.Add(time.Hour)}))

	removed, err := repo.DeleteExpired(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestMemorySession_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySessionRepository()

	s := &models.AdminSession{ID: "s1", UserID: "admin", CreatedAt: t0, ExpiresAt: t0.Add(8 * time.Hour)}
	require.NoError(t, repo.Create(ctx, s))
	assert.ErrorIs(t, repo.Create(ctx, s), models.ErrConflict)

	got, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, got.Valid(t0.Add(time.Hour)))

	require.NoError(t, repo.Revoke(ctx, "s1", t0.Add(time.Hour)))
	require.NoError(t, repo.Revoke(ctx, "s1", t0.Add(2*time.Hour)))
	got, err = repo.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got.RevokedAt)
	assert.Equal(t, t0.Add(time.Hour), *got.RevokedAt)

	assert.ErrorIs(t, repo.Revoke(ctx, "missing", t0), models.ErrNotFound)
}

func TestMemorySession_RevokeAllForUser(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySessionRepository()
	for _, id := range []string{"s1", "s2"} {
		require.NoError(t, repo.Create(ctx, &models.AdminSession{ID: id, UserID: "admin", CreatedAt: t0, ExpiresAt: t0.Add(time.Hour)}))
	}
	require.NoError(t, repo.Create(ctx, &models.AdminSession{ID: "s3", UserID: "other", CreatedAt: t0, ExpiresAt: t0.Add(time.Hour)}))

	n, err := repo.RevokeAllForUser(ctx, "admin", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := repo.Get(ctx, "s3")
	require.NoError(t, err)
	assert.False(t, got.Revoked())

	removed, err := repo.DeleteExpired(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
}
