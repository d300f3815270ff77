package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BradenHooton/marketguard/internal/models"
	"github.com/google/uuid"
)

// MemoryLoginGuardRepository keeps attempt history and lockouts in process.
// It is used when no database is configured and in tests.
type MemoryLoginGuardRepository struct {
	mu       sync.Mutex
	attempts map[string][]models.LoginAttempt // oldest first
	lockouts map[string]models.Lockout
}

func NewMemoryLoginGuardRepository() *MemoryLoginGuardRepository {
	return &MemoryLoginGuardRepository{
		attempts: make(map[string][]models.LoginAttempt),
		lockouts: make(map[string]models.Lockout),
	}
}

func (r *MemoryLoginGuardRepository) RecordAttempt(_ context.Context, attempt *models.LoginAttempt, keep int) error {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	history := append(r.attempts[attempt.AccountID], *attempt)
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp.Before(history[j].Timestamp)
	})
	if keep > 0 && len(history) > keep {
		history = append([]models.LoginAttempt(nil), history[len(history)-keep:]...)
	}
	r.attempts[attempt.AccountID] = history
	return nil
}

func (r *MemoryLoginGuardRepository) RecentAttempts(_ context.Context, accountID string, limit int) ([]models.LoginAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	history := r.attempts[accountID]
	out := make([]models.LoginAttempt, 0, min(limit, len(history)))
	for i := len(history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, history[i])
	}
	return out, nil
}

func (r *MemoryLoginGuardRepository) GetLockout(_ context.Context, accountID string) (*models.Lockout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.lockouts[accountID]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (r *MemoryLoginGuardRepository) CreateLockout(_ context.Context, lockout *models.Lockout) (*models.Lockout, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.lockouts[lockout.AccountID]; ok && existing.Active(lockout.Start) {
		return &existing, false, nil
	}
	r.lockouts[lockout.AccountID] = *lockout
	out := *lockout
	return &out, true, nil
}

func (r *MemoryLoginGuardRepository) DeleteExpired(_ context.Context, now, attemptsBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for id, l := range r.lockouts {
		if !l.Active(now) {
			delete(r.lockouts, id)
			removed++
		}
	}
	for id, history := range r.attempts {
		i := 0
		for i < len(history) && history[i].Timestamp.Before(attemptsBefore) {
			i++
		}
		removed += int64(i)
		if i == len(history) {
			delete(r.attempts, id)
		} else if i > 0 {
			r.attempts[id] = history[i:]
		}
	}
	return removed, nil
}

// MemoryChallengeRepository holds one challenge per user
type MemoryChallengeRepository struct {
	mu         sync.Mutex
	challenges map[string]models.TwoFactorChallenge
}

func NewMemoryChallengeRepository() *MemoryChallengeRepository {
	return &MemoryChallengeRepository{challenges: make(map[string]models.TwoFactorChallenge)}
}

func (r *MemoryChallengeRepository) Put(_ context.Context, c *models.TwoFactorChallenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *c
	stored.Used = false
	r.challenges[c.UserID] = stored
	return nil
}

func (r *MemoryChallengeRepository) Get(_ context.Context, userID string) (*models.TwoFactorChallenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.challenges[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &c, nil
}

func (r *MemoryChallengeRepository) MarkUsed(_ context.Context, userID, challengeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.challenges[userID]
	if !ok || c.ID != challengeID || c.Used {
		return false, nil
	}
	c.Used = true
	r.challenges[userID] = c
	return true, nil
}

func (r *MemoryChallengeRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for id, c := range r.challenges {
		if c.Used || c.Expired(now) {
			delete(r.challenges, id)
			removed++
		}
	}
	return removed, nil
}

// MemorySessionRepository keeps admin sessions in process
type MemorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string]models.AdminSession
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[string]models.AdminSession)}
}

func (r *MemorySessionRepository) Create(_ context.Context, s *models.AdminSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.ID]; ok {
		return models.ErrConflict
	}
	r.sessions[s.ID] = *s
	return nil
}

func (r *MemorySessionRepository) Get(_ context.Context, id string) (*models.AdminSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &s, nil
}

func (r *MemorySessionRepository) Revoke(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return models.ErrNotFound
	}
	if s.RevokedAt == nil {
		s.RevokedAt = &at
		r.sessions[id] = s
	}
	return nil
}

func (r *MemorySessionRepository) RevokeAllForUser(_ context.Context, userID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, s := range r.sessions {
		if s.UserID == userID && s.Valid(at) {
			revokedAt := at
			s.RevokedAt = &revokedAt
			r.sessions[id] = s
			n++
		}
	}
	return n, nil
}

func (r *MemorySessionRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, s := range r.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}
