package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func record(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestSecurityHeaders_HSTSOnlyOverHTTPSInProduction(t *testing.T) {
	cases := []struct {
		env   string
		proto string
		hsts  bool
	}{
		{"production", "https", true},
		{"production", "http", false},
		{"development", "https", false},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/search", nil)
		req.Header.Set("X-Forwarded-Proto", tc.proto)
		rec := record(SecurityHeaders(SecurityHeadersConfig{Env: tc.env})(okHandler()), req)

		assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, tc.hsts, rec.Header().Get("Strict-Transport-Security") != "", "%s over %s", tc.env, tc.proto)
		assert.Empty(t, rec.Header().Get("Content-Security-Policy"))
	}
}

func TestAPIHeaders(t *testing.T) {
	rec := record(APIHeaders(okHandler()), httptest.NewRequest(http.MethodGet, "/admin/session", nil))

	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "default-src 'none'; frame-ancestors 'none'", rec.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "same-origin", rec.Header().Get("Cross-Origin-Opener-Policy"))
}
