package http_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	pkghttp "github.com/BradenHooton/marketguard/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolver(t *testing.T, cidrs ...string) *pkghttp.IPResolver {
	t.Helper()
	res, err := pkghttp.NewIPResolver(pkghttp.IPConfig{TrustedProxies: cidrs})
	require.NoError(t, err)
	return res
}

func TestClientIP_DirectConnection_IgnoresHeaders(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.10:54321"
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	req.Header.Set("X-Real-IP", "192.168.1.1")

	res := newResolver(t, "10.0.0.0/8", "172.16.0.0/12", "127.0.0.1/32")

	assert.Equal(t, "203.0.113.10", res.ClientIP(req))
}

func TestClientIP_TrustedProxy_UsesXForwardedFor(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.42, 10.0.0.5")

	res := newResolver(t, "10.0.0.0/8")

	assert.Equal(t, "203.0.113.42", res.ClientIP(req))
}

func TestClientIP_SpoofedLeftmostEntryIgnored(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	// client sent "127.0.0.1", the proxy appended the real peer
	req.Header.Set("X-Forwarded-For", "127.0.0.1, 203.0.113.43")

	res := newResolver(t, "10.0.0.0/8")

	assert.Equal(t, "203.0.113.43", res.ClientIP(req))
}

func TestClientIP_IPv6_TrustedProxy(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "[fd00::1]:443"
	req.Header.Set("X-Forwarded-For", "2001:db8::42")

	res := newResolver(t, "fd00::/8")

	assert.Equal(t, "2001:db8::42", res.ClientIP(req))
}

func TestClientIP_FallsBackToXRealIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Real-IP", "198.51.100.3")

	res := newResolver(t, "10.0.0.0/8")

	assert.Equal(t, "198.51.100.3", res.ClientIP(req))
}

func TestClientIP_NoTrustedProxies_StripsPort(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.10:54321"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")

	res := newResolver(t)

	assert.Equal(t, "203.0.113.10", res.ClientIP(req))
}

func TestNewIPResolver_InvalidCIDR(t *testing.T) {
	_, err := pkghttp.NewIPResolver(pkghttp.IPConfig{TrustedProxies: []string{"not-a-cidr"}})
	assert.Error(t, err)
}

func TestTrustedRealIP_RewritesRemoteAddr(t *testing.T) {
	res := newResolver(t, "10.0.0.0/8")

	var seen string
	handler := pkghttp.TrustedRealIP(res)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.RemoteAddr
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.1.2.3:8080"
	req.Header.Set("X-Forwarded-For", "198.51.100.77")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "198.51.100.77", seen)
}
