package auth_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/marketguard/internal/auth"
	"github.com/BradenHooton/marketguard/internal/clock"
	"github.com/BradenHooton/marketguard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockSessionValidator implements auth.SessionValidator
type MockSessionValidator struct {
	ValidateFunc func(ctx context.Context, sessionID string) (*models.AdminSession, error)
}

func (m *MockSessionValidator) Validate(ctx context.Context, sessionID string) (*models.AdminSession, error) {
	return m.ValidateFunc(ctx, sessionID)
}

func protected(t *testing.T, tm *auth.TokenManager, sessions auth.SessionValidator) (http.Handler, *bool) {
	t.Helper()
	reached := false
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := auth.RequireAdminSession(tm, sessions, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		assert.NotNil(t, auth.ClaimsFromContext(r.Context()))
		assert.NotNil(t, auth.SessionFromContext(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	}))
	return h, &reached
}

func TestRequireAdminSession(t *testing.T) {
	tm := auth.NewTokenManager(testSecret, clock.NewManual(epoch))
	user, session := testSession()
	token, err := tm.Issue(user, session)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		validate   func(ctx context.Context, id string) (*models.AdminSession, error)
		wantStatus int
		wantReach  bool
	}{
		{
			name:   "valid session",
			header: "Bearer " + token,
			validate: func(ctx context.Context, id string) (*models.AdminSession, error) {
				assert.Equal(t, session.ID, id)
				return session, nil
			},
			wantStatus: http.StatusNoContent,
			wantReach:  true,
		},
		{
			name:       "missing header",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed header",
			header:     "Token " + token,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:   "revoked session",
			header: "Bearer " + token,
			validate: func(ctx context.Context, id string) (*models.AdminSession, error) {
				return nil, models.ErrSessionRevoked
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:   "session store down fails closed",
			header: "Bearer " + token,
			validate: func(ctx context.Context, id string) (*models.AdminSession, error) {
				return nil, errors.New("connection reset")
			},
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:   "session belongs to another user",
			header: "Bearer " + token,
			validate: func(ctx context.Context, id string) (*models.AdminSession, error) {
				return &models.AdminSession{ID: id, UserID: "someone-else"}, nil
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := &MockSessionValidator{ValidateFunc: tt.validate}
			if sessions.ValidateFunc == nil {
				sessions.ValidateFunc = func(ctx context.Context, id string) (*models.AdminSession, error) {
					t.Fatal("session lookup should not happen")
					return nil, nil
				}
			}
			h, reached := protected(t, tm, sessions)

			req := httptest.NewRequest(http.MethodGet, "/admin/session", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantReach, *reached)
		})
	}
}

func TestClaimsFromRequest_NeverRejects(t *testing.T) {
	tm := auth.NewTokenManager(testSecret, clock.NewManual(epoch))
	user, session := testSession()
	token, err := tm.Issue(user, session)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, tm.ClaimsFromRequest(req))

	req.Header.Set("Authorization", "Bearer garbage")
	assert.Nil(t, tm.ClaimsFromRequest(req))

	req.Header.Set("Authorization", "bearer "+token)
	claims := tm.ClaimsFromRequest(req)
	require.NotNil(t, claims)
	assert.Equal(t, user.ID, claims.UserID)
}

func TestRequireRole(t *testing.T) {
	h := auth.RequireRole("admin", "support")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(claims *models.TokenClaims) int {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
		if claims != nil {
			req = req.WithContext(auth.WithSession(req.Context(), claims, &models.AdminSession{ID: "s1"}))
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusUnauthorized, serve(nil))
	assert.Equal(t, http.StatusNoContent, serve(&models.TokenClaims{UserID: "u1", Role: "support"}))
	assert.Equal(t, http.StatusForbidden, serve(&models.TokenClaims{UserID: "u2", Role: "viewer"}))
}

func TestLiveClaims(t *testing.T) {
	tm := auth.NewTokenManager(testSecret, clock.NewManual(epoch))
	user, session := testSession()
	token, err := tm.Issue(user, session)
	require.NoError(t, err)

	tests := []struct {
		name     string
		validate func(ctx context.Context, id string) (*models.AdminSession, error)
		wantUser string
	}{
		{
			name:     "live session",
			validate: func(ctx context.Context, id string) (*models.AdminSession, error) { return session, nil },
			wantUser: user.ID,
		},
		{
			name:     "revoked session",
			validate: func(ctx context.Context, id string) (*models.AdminSession, error) { return nil, models.ErrSessionRevoked },
		},
		{
			name:     "lookup failure",
			validate: func(ctx context.Context, id string) (*models.AdminSession, error) { return nil, errors.New("db down") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := auth.NewLiveClaims(tm, &MockSessionValidator{ValidateFunc: tt.validate})
			req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
			req.Header.Set("Authorization", "Bearer "+token)

			claims := lc.ClaimsFromRequest(req)
			if tt.wantUser == "" {
				assert.Nil(t, claims)
				return
			}
			require.NotNil(t, claims)
			assert.Equal(t, tt.wantUser, claims.UserID)
		})
	}
}
