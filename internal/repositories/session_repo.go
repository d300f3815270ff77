package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/marketguard/internal/database"
	"github.com/BradenHooton/marketguard/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{pool: db.Pool}
}

func (r *SessionRepository) Create(ctx context.Context, s *models.AdminSession) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO admin_sessions (id, user_id, ip_address, user_agent, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.ID, s.UserID, s.IPAddress, s.UserAgent, s.CreatedAt, s.ExpiresAt)
	return database.MapPostgresError(err)
}

// Get returns the session or models.ErrNotFound
func (r *SessionRepository) Get(ctx context.Context, id string) (*models.AdminSession, error) {
	var s models.AdminSession
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, ip_address, user_agent, created_at, expires_at, revoked_at
		FROM admin_sessions WHERE id = $1
	`, id).Scan(&s.ID, &s.UserID, &s.IPAddress, &s.UserAgent, &s.CreatedAt, &s.ExpiresAt, &s.RevokedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &s, nil
}

// Revoke marks one session revoked. Revoking twice keeps the first timestamp.
func (r *SessionRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	res, err := r.pool.Exec(ctx, `
		UPDATE admin_sessions SET revoked_at = COALESCE(revoked_at, $2) WHERE id = $1
	`, id, at)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if res.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// RevokeAllForUser revokes every live session of a user
func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	res, err := r.pool.Exec(ctx, `
		UPDATE admin_sessions SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
	`, userID, at)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return res.RowsAffected(), nil
}

// DeleteExpired removes sessions that can no longer authenticate
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.pool.Exec(ctx, `DELETE FROM admin_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return res.RowsAffected(), nil
}
