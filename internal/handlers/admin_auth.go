package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/marketguard/internal/auth"
	"github.com/BradenHooton/marketguard/internal/models"
	"github.com/BradenHooton/marketguard/internal/services"
	"github.com/BradenHooton/marketguard/internal/throttle"
	pkghttp "github.com/BradenHooton/marketguard/pkg/http"
)

// AdminAuthServiceInterface is the admin login state machine
type AdminAuthServiceInterface interface {
	Login(ctx context.Context, in services.LoginInput) (*services.LoginResult, error)
	VerifyTwoFactor(ctx context.Context, in services.VerifyInput) (*services.LoginResult, error)
}

// SessionServiceInterface revokes admin sessions
type SessionServiceInterface interface {
	Revoke(ctx context.Context, session *models.AdminSession, ipAddress string) error
	RevokeAll(ctx context.Context, userID, ipAddress string) (int64, error)
}

// AdminAuthHandler serves the admin login, two-factor and session endpoints
type AdminAuthHandler struct {
	service  AdminAuthServiceInterface
	sessions SessionServiceInterface
	logger   *slog.Logger
}

func NewAdminAuthHandler(service AdminAuthServiceInterface, sessions SessionServiceInterface, logger *slog.Logger) *AdminAuthHandler {
	return &AdminAuthHandler{service: service, sessions: sessions, logger: logger}
}

// Request DTOs

// AdminLoginRequest represents the request body for admin login
type AdminLoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

// VerifyTwoFactorRequest represents the request body for code verification
type VerifyTwoFactorRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// Response DTOs

// SessionResponse is returned once an admin is fully authenticated
type SessionResponse struct {
	Token     string            `json:"token"`
	ExpiresAt string            `json:"expiresAt"`
	User      *models.AdminUser `json:"user"`
}

// LogoutAllResponse reports how many sessions were revoked
type LogoutAllResponse struct {
	Revoked int64 `json:"revoked"`
}

// Login handles POST /admin/login
func (h *AdminAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req AdminLoginRequest
	if err := DecodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ip, ua := clientInfo(r)
	result, err := h.service.Login(r.Context(), services.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: ip,
		UserAgent: ua,
	})
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	if result.RequiresTwoFactor {
		pkghttp.WriteJSON(w, http.StatusOK, models.TwoFactorRequiredResponse{
			RequiresTwoFactor: true,
			ExpiresAt:         result.ChallengeExpiresAt.UTC().Format(time.RFC3339),
		})
		return
	}
	writeSession(w, result)
}

// VerifyTwoFactor handles POST /admin/login/verify
func (h *AdminAuthHandler) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req VerifyTwoFactorRequest
	if err := DecodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ip, ua := clientInfo(r)
	result, err := h.service.VerifyTwoFactor(r.Context(), services.VerifyInput{
		Email:     req.Email,
		Code:      req.Code,
		IPAddress: ip,
		UserAgent: ua,
	})
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	writeSession(w, result)
}

// Logout handles POST /admin/logout; requires an admin session
func (h *AdminAuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r.Context())
	if session == nil {
		pkghttp.WriteUnauthorized(w, "authentication required")
		return
	}

	ip, _ := clientInfo(r)
	if err := h.sessions.Revoke(r.Context(), session, ip); err != nil && !errors.Is(err, models.ErrNotFound) {
		h.logger.Error("failed to revoke session", slog.String("session_id", session.ID), slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll handles POST /admin/logout/all
func (h *AdminAuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r.Context())
	if session == nil {
		pkghttp.WriteUnauthorized(w, "authentication required")
		return
	}

	ip, _ := clientInfo(r)
	n, err := h.sessions.RevokeAll(r.Context(), session.UserID, ip)
	if err != nil {
		h.logger.Error("failed to revoke sessions", slog.String("user_id", session.UserID), slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, LogoutAllResponse{Revoked: n})
}

// Session handles GET /admin/session
func (h *AdminAuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r.Context())
	if session == nil {
		pkghttp.WriteUnauthorized(w, "authentication required")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, session)
}

func (h *AdminAuthHandler) writeAuthError(w http.ResponseWriter, err error) {
	var locked *services.LockedError
	switch {
	case errors.As(err, &locked):
		pkghttp.WriteLocked(w, throttle.RetryAfterSeconds(locked.RetryAfter))
	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteInvalidCredentials(w)
	case errors.Is(err, models.ErrTwoFactorExpired):
		pkghttp.WriteTwoFactorInvalid(w, "Verification code expired. Please sign in again.")
	case errors.Is(err, models.ErrTwoFactorInvalid):
		pkghttp.WriteTwoFactorInvalid(w, "Invalid verification code.")
	case errors.Is(err, models.ErrStoreUnavailable):
		pkghttp.WriteServiceUnavailable(w)
	default:
		h.logger.Error("admin login failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "An unexpected error occurred.")
	}
}

func writeSession(w http.ResponseWriter, result *services.LoginResult) {
	pkghttp.WriteJSON(w, http.StatusOK, SessionResponse{
		Token:     result.Token,
		ExpiresAt: result.Session.ExpiresAt.UTC().Format(time.RFC3339),
		User:      result.User,
	})
}

// clientInfo returns the caller's resolved IP and user agent
func clientInfo(r *http.Request) (string, string) {
	if id, ok := throttle.IdentityFrom(r.Context()); ok {
		return id.IP, id.UserAgent
	}
	return r.RemoteAddr, r.UserAgent()
}
