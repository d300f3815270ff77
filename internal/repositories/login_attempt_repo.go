package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/marketguard/internal/database"
	"github.com/BradenHooton/marketguard/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LoginGuardRepository persists attempt history and lockouts in Postgres
type LoginGuardRepository struct {
	db *database.DB
}

// NewLoginGuardRepository creates a new LoginGuardRepository
func NewLoginGuardRepository(db *database.DB) *LoginGuardRepository {
	return &LoginGuardRepository{db: db}
}

// RecordAttempt appends attempt and trims the account's history to the newest keep entries
func (r *LoginGuardRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt, keep int) error {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}

	return database.MapPostgresError(r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO login_attempts (id, account_id, ip_address, success, reason, attempted_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, attempt.ID, attempt.AccountID, attempt.IPAddress, attempt.Success, attempt.Reason, attempt.Timestamp)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			DELETE FROM login_attempts
			WHERE account_id = $1 AND id NOT IN (
				SELECT id FROM login_attempts
				WHERE account_id = $1
				ORDER BY attempted_at DESC, id DESC
				LIMIT $2
			)
		`, attempt.AccountID, keep)
		return err
	}))
}

// RecentAttempts returns up to limit attempts for an account, newest first
func (r *LoginGuardRepository) RecentAttempts(ctx context.Context, accountID string, limit int) ([]models.LoginAttempt, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, account_id, ip_address, success, reason, attempted_at
		FROM login_attempts
		WHERE account_id = $1
		ORDER BY attempted_at DESC, id DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	attempts, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.LoginAttempt])
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return attempts, nil
}

// GetLockout returns the account's lockout row, or nil when none exists.
// The row may already have expired; callers check Active.
func (r *LoginGuardRepository) GetLockout(ctx context.Context, accountID string) (*models.Lockout, error) {
	var (
		l          models.Lockout
		durationMS int64
	)
	err := r.db.Pool.QueryRow(ctx, `
		SELECT account_id, started_at, duration_ms FROM account_lockouts WHERE account_id = $1
	`, accountID).Scan(&l.AccountID, &l.Start, &durationMS)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	l.Duration = time.Duration(durationMS) * time.Millisecond
	return &l, nil
}

// CreateLockout inserts lockout unless an active one exists, and returns the
// lockout in force. An expired row is replaced; an active one is never extended.
func (r *LoginGuardRepository) CreateLockout(ctx context.Context, lockout *models.Lockout) (*models.Lockout, bool, error) {
	var accountID string
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO account_lockouts (account_id, started_at, duration_ms, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id) DO UPDATE
			SET started_at = EXCLUDED.started_at,
			    duration_ms = EXCLUDED.duration_ms,
			    expires_at = EXCLUDED.expires_at
			WHERE account_lockouts.expires_at <= EXCLUDED.started_at
		RETURNING account_id
	`, lockout.AccountID, lockout.Start, lockout.Duration.Milliseconds(), lockout.Until()).Scan(&accountID)

	if err == pgx.ErrNoRows {
		existing, getErr := r.GetLockout(ctx, lockout.AccountID)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, database.MapPostgresError(err)
	}
	return lockout, true, nil
}

// DeleteExpired removes cleared lockouts and attempts older than before
func (r *LoginGuardRepository) DeleteExpired(ctx context.Context, now, attemptsBefore time.Time) (int64, error) {
	var total int64
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		res, err := tx.Exec(ctx, `DELETE FROM account_lockouts WHERE expires_at <= $1`, now)
		if err != nil {
			return err
		}
		total += res.RowsAffected()

		res, err = tx.Exec(ctx, `DELETE FROM login_attempts WHERE attempted_at < $1`, attemptsBefore)
		if err != nil {
			return err
		}
		total += res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return total, nil
}
