package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/marketguard/internal/database/dbtest"
	"github.com/BradenHooton/marketguard/internal/models"
)

func TestPostgresRepositories(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	db := dbtest.NewDB(t)
	ctx := context.Background()

	t.Run("attempt history is trimmed", func(t *testing.T) {
		require.NoError(t, dbtest.Truncate(ctx, db))
		repo := NewLoginGuardRepository(db)

		for i := 0; i < 12; i++ {
			require.NoError(t, repo.RecordAttempt(ctx, attemptAt("a@example.com", i, i%2 == 0), 10))
		}
		got, err := repo.RecentAttempts(ctx, "a@example.com", 50)
		require.NoError(t, err)
		require.Len(t, got, 10)
		assert.True(t, got[0].Timestamp.Equal(t0.Add(11*time.Minute)))
		assert.False(t, got[0].Success)
	})

	t.Run("lockout insert if absent", func(t *testing.T) {
		require.NoError(t, dbtest.Truncate(ctx, db))
		repo := NewLoginGuardRepository(db)

		l, err := repo.GetLockout(ctx, "a")
		require.NoError(t, err)
		assert.Nil(t, l)

		_, created, err := repo.CreateLockout(ctx, &models.Lockout{AccountID: "a", Start: t0, Duration: 30 * time.Minute})
		require.NoError(t, err)
		assert.True(t, created)

		got, created, err := repo.CreateLockout(ctx, &models.Lockout{AccountID: "a", Start: t0.Add(5 * time.Minute), Duration: 30 * time.Minute})
		require.NoError(t, err)
		assert.False(t, created)
		assert.True(t, got.Until().Equal(t0.Add(30*time.Minute)))

		_, created, err = repo.CreateLockout(ctx, &models.Lockout{AccountID: "a", Start: t0.Add(31 * time.Minute), Duration: 30 * time.Minute})
		require.NoError(t, err)
		assert.True(t, created)

		removed, err := repo.DeleteExpired(ctx, t0.Add(2*time.Hour), t0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
	})

	t.Run("challenge used once", func(t *testing.T) {
		require.NoError(t, dbtest.Truncate(ctx, db))
		repo := NewChallengeRepository(db)

		c := &models.TwoFactorChallenge{ID: uuid.NewString(), UserID: "admin", CodeHash: "h", CreatedAt: t0, ExpiresAt: t0.Add(10 * time.Minute)}
		require.NoError(t, repo.Put(ctx, c))

		ok, err := repo.MarkUsed(ctx, "admin", c.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = repo.MarkUsed(ctx, "admin", c.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = repo.Get(ctx, "nobody")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("session revoke", func(t *testing.T) {
		require.NoError(t, dbtest.Truncate(ctx, db))
		repo := NewSessionRepository(db)

		s := &models.AdminSession{ID: uuid.NewString(), UserID: "admin", IPAddress: "203.0.113.7", CreatedAt: t0, ExpiresAt: t0.Add(time.Hour)}
		require.NoError(t, repo.Create(ctx, s))
		assert.ErrorIs(t, repo.Create(ctx, s), models.ErrConflict)

		require.NoError(t, repo.Revoke(ctx, s.ID, t0.Add(time.Minute)))
		got, err := repo.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.True(t, got.Revoked())

		assert.ErrorIs(t, repo.Revoke(ctx, uuid.NewString(), t0), models.ErrNotFound)
	})
}
