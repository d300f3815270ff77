package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/marketguard/internal/auth"
	"github.com/BradenHooton/marketguard/internal/models"
	"github.com/BradenHooton/marketguard/internal/services"
	pkghttp "github.com/BradenHooton/marketguard/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAdminSession adds an admin session to the request context as
// auth.RequireAdminSession would
func WithAdminSession(req *http.Request, session *models.AdminSession) *http.Request {
	claims := &models.TokenClaims{UserID: session.UserID}
	claims.ID = session.ID
	return req.WithContext(auth.WithSession(req.Context(), claims, session))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAdminAuthService implements AdminAuthServiceInterface for testing
type MockAdminAuthService struct {
	LoginFunc           func(ctx context.Context, in services.LoginInput) (*services.LoginResult, error)
	VerifyTwoFactorFunc func(ctx context.Context, in services.VerifyInput) (*services.LoginResult, error)
}

func (m *MockAdminAuthService) Login(ctx context.Context, in services.LoginInput) (*services.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, in)
}

func (m *MockAdminAuthService) VerifyTwoFactor(ctx context.Context, in services.VerifyInput) (*services.LoginResult, error) {
	if m.VerifyTwoFactorFunc == nil {
		return nil, models.ErrTwoFactorInvalid
	}
	return m.VerifyTwoFactorFunc(ctx, in)
}

// MockSessionService implements SessionServiceInterface for testing
type MockSessionService struct {
	RevokeFunc    func(ctx context.Context, session *models.AdminSession, ipAddress string) error
	RevokeAllFunc func(ctx context.Context, userID, ipAddress string) (int64, error)
}

func (m *MockSessionService) Revoke(ctx context.Context, session *models.AdminSession, ipAddress string) error {
	if m.RevokeFunc == nil {
		return nil
	}
	return m.RevokeFunc(ctx, session, ipAddress)
}

func (m *MockSessionService) RevokeAll(ctx context.Context, userID, ipAddress string) (int64, error) {
	if m.RevokeAllFunc == nil {
		return 0, nil
	}
	return m.RevokeAllFunc(ctx, userID, ipAddress)
}
