package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/marketguard/internal/database"
	"github.com/BradenHooton/marketguard/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ChallengeRepository stores the single active two-factor challenge per user
type ChallengeRepository struct {
	pool *pgxpool.Pool
}

func NewChallengeRepository(db *database.DB) *ChallengeRepository {
	return &ChallengeRepository{pool: db.Pool}
}

// Put stores c, replacing any earlier challenge for the same user
func (r *ChallengeRepository) Put(ctx context.Context, c *models.TwoFactorChallenge) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO two_factor_challenges (user_id, id, code_hash, created_at, expires_at, used)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		ON CONFLICT (user_id) DO UPDATE
			SET id = EXCLUDED.id,
			    code_hash = EXCLUDED.code_hash,
			    created_at = EXCLUDED.created_at,
			    expires_at = EXCLUDED.expires_at,
			    used = FALSE
	`, c.UserID, c.ID, c.CodeHash, c.CreatedAt, c.ExpiresAt)
	return database.MapPostgresError(err)
}

// Get returns the user's challenge or models.ErrNotFound
func (r *ChallengeRepository) Get(ctx context.Context, userID string) (*models.TwoFactorChallenge, error) {
	var c models.TwoFactorChallenge
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, code_hash, created_at, expires_at, used
		FROM two_factor_challenges WHERE user_id = $1
	`, userID).Scan(&c.ID, &c.UserID, &c.CodeHash, &c.CreatedAt, &c.ExpiresAt, &c.Used)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &c, nil
}

// MarkUsed flips used for exactly one caller. It reports false when the
// challenge was already used or replaced.
func (r *ChallengeRepository) MarkUsed(ctx context.Context, userID, challengeID string) (bool, error) {
	res, err := r.pool.Exec(ctx, `
		UPDATE two_factor_challenges SET used = TRUE
		WHERE user_id = $1 AND id = $2 AND used = FALSE
	`, userID, challengeID)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return res.RowsAffected() == 1, nil
}

// DeleteExpired removes challenges past their expiry or already used
func (r *ChallengeRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.pool.Exec(ctx, `DELETE FROM two_factor_challenges WHERE expires_at <= $1 OR used`, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return res.RowsAffected(), nil
}
