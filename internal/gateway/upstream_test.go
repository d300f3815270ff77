package gateway

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/marketguard/internal/auth"
	"github.com/BradenHooton/marketguard/internal/models"
	"github.com/BradenHooton/marketguard/internal/throttle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewUpstream_RejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://shop.internal", "http://", "::bad"} {
		_, err := NewUpstream(Config{URL: raw}, discard())
		assert.Error(t, err, raw)
	}
}

func TestUpstream_ForwardsResolvedIdentity(t *testing.T) {
	var got http.Header
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusTeapot)
	}))
	defer backend.Close()

	proxy, err := NewUpstream(Config{URL: backend.URL}, discard())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=lamp", nil)
	req.Header.Set(HeaderClientIP, "6.6.6.6")
	req.Header.Set(HeaderAdminUser, "spoofed")
	req = req.WithContext(throttle.WithIdentity(req.Context(), throttle.Identity{IP: "203.0.113.7"}))

	w := httptest.NewRecorder()
	proxy.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "203.0.113.7", got.Get(HeaderClientIP))
	assert.Empty(t, got.Get(HeaderAdminUser))
}

func TestUpstream_AdminPrincipalReplacesToken(t *testing.T) {
	var got http.Header
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer backend.Close()

	proxy, err := NewUpstream(Config{URL: backend.URL}, discard())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
	req.Header.Set("Authorization", "Bearer abc")
	claims := &models.TokenClaims{UserID: "admin-1", Role: "admin"}
	req = req.WithContext(auth.WithSession(req.Context(), claims, &models.AdminSession{ID: "s1", UserID: "admin-1"}))

	proxy.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "admin-1", got.Get(HeaderAdminUser))
	assert.Equal(t, "admin", got.Get(HeaderAdminRole))
	assert.Empty(t, got.Get("Authorization"))
}

func TestUpstream_BackendDownIsBadGateway(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	url := backend.URL
	backend.Close()

	proxy, err := NewUpstream(Config{URL: url}, discard())
	require.NoError(t, err)

	w := httptest.NewRecorder()
	proxy.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/cart", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "bad_gateway")
}

func TestUpstream_GatewayOwnsSecurityHeaders(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		w.Header().Set("Cache-Control", "public, max-age=60")
	}))
	defer backend.Close()

	proxy, err := NewUpstream(Config{URL: backend.URL}, discard())
	require.NoError(t, err)

	w := httptest.NewRecorder()
	w.Header().Set("X-Frame-Options", "DENY")
	proxy.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/products/42", nil))

	assert.Equal(t, []string{"DENY"}, w.Header().Values("X-Frame-Options"))
	assert.Equal(t, "public, max-age=60", w.Header().Get("Cache-Control"))
}
