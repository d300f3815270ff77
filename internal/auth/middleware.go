package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/marketguard/internal/models"
	pkghttp "github.com/BradenHooton/marketguard/pkg/http"
)

type contextKey string

const (
	claimsContextKey  contextKey = "claims"
	sessionContextKey contextKey = "session"
)

// SessionValidator resolves the live session behind a token's jti
type SessionValidator interface {
	Validate(ctx context.Context, sessionID string) (*models.AdminSession, error)
}

// BearerToken extracts the token from an "Authorization: Bearer" header
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// ClaimsFromRequest returns the validated claims of the request's bearer
// token, or nil when there is no valid token. It never rejects.
func (tm *TokenManager) ClaimsFromRequest(r *http.Request) *models.TokenClaims {
	token, ok := BearerToken(r)
	if !ok {
		return nil
	}
	claims, err := tm.Validate(token)
	if err != nil {
		return nil
	}
	return claims
}

// LiveClaims resolves claims only for tokens whose session is still live, so
// a revoked token cannot select a per-user throttle budget.
type LiveClaims struct {
	tokens   *TokenManager
	sessions SessionValidator
}

// NewLiveClaims checks tokens with tm and their sessions with sessions.
func NewLiveClaims(tm *TokenManager, sessions SessionValidator) *LiveClaims {
	return &LiveClaims{tokens: tm, sessions: sessions}
}

// ClaimsFromRequest returns nil for a missing, invalid or revoked token, and
// when the session lookup fails.
func (lc *LiveClaims) ClaimsFromRequest(r *http.Request) *models.TokenClaims {
	claims := lc.tokens.ClaimsFromRequest(r)
	if claims == nil || lc.sessions == nil {
		return claims
	}
	session, err := lc.sessions.Validate(r.Context(), claims.ID)
	if err != nil || session.UserID != claims.UserID {
		return nil
	}
	return claims
}

// RequireAdminSession rejects requests without a valid token whose session
// is still live. Session lookup failures fail closed.
func RequireAdminSession(tm *TokenManager, sessions SessionValidator, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				pkghttp.WriteUnauthorized(w, "missing or malformed authorization header")
				return
			}

			claims, err := tm.Validate(token)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			session, err := sessions.Validate(r.Context(), claims.ID)
			switch {
			case err == nil:
			case errors.Is(err, models.ErrSessionRevoked), errors.Is(err, models.ErrNotFound):
				pkghttp.WriteUnauthorized(w, "session has been revoked or expired")
				return
			default:
				logger.Error("session lookup failed", slog.String("user_id", claims.UserID), slog.Any("error", err))
				pkghttp.WriteServiceUnavailable(w)
				return
			}

			if session.UserID != claims.UserID {
				pkghttp.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), claims, session)))
		})
	}
}

// WithSession stores claims and session the way RequireAdminSession does
func WithSession(ctx context.Context, claims *models.TokenClaims, session *models.AdminSession) context.Context {
	ctx = context.WithValue(ctx, claimsContextKey, claims)
	return context.WithValue(ctx, sessionContextKey, session)
}

// ClaimsFromContext extracts token claims stored by RequireAdminSession
func ClaimsFromContext(ctx context.Context) *models.TokenClaims {
	claims, _ := ctx.Value(claimsContextKey).(*models.TokenClaims)
	return claims
}

// SessionFromContext extracts the session stored by RequireAdminSession
func SessionFromContext(ctx context.Context) *models.AdminSession {
	session, _ := ctx.Value(sessionContextKey).(*models.AdminSession)
	return session
}
