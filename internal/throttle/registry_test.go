package throttle_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/marketguard/internal/throttle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r, err := throttle.NewRegistry()
	require.NoError(t, err)

	require.NoError(t, r.Register(throttle.Policy{Name: "a", Window: time.Second, Max: 1}))

	p, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, p.Max)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	r, err := throttle.NewRegistry(throttle.Policy{Name: "a", Window: time.Second, Max: 1})
	require.NoError(t, err)

	err = r.Register(throttle.Policy{Name: "a", Window: time.Minute, Max: 9})
	assert.True(t, errors.Is(err, throttle.ErrDuplicatePolicy))
	assert.Equal(t, 1, r.MustGet("a").Max)
}

func TestRegistry_PoliciesAreImmutable(t *testing.T) {
	r, err := throttle.NewRegistry(throttle.Policy{Name: "a", Window: time.Second, Max: 3})
	require.NoError(t, err)

	p := r.MustGet("a")
	p.Max = 1000

	assert.Equal(t, 3, r.MustGet("a").Max)
}

func TestRegistry_InvalidPolicies(t *testing.T) {
	tests := []struct {
		name   string
		policy throttle.Policy
	}{
		{name: "missing name", policy: throttle.Policy{Window: time.Second, Max: 1}},
		{name: "zero window", policy: throttle.Policy{Name: "x", Max: 1}},
		{name: "zero max", policy: throttle.Policy{Name: "x", Window: time.Second}},
	}

	r, err := throttle.NewRegistry()
	require.NoError(t, err)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Register(tt.policy)
			assert.True(t, errors.Is(err, throttle.ErrInvalidPolicy))
		})
	}
}

func TestRegistry_MustGetPanicsOnUnknown(t *testing.T) {
	r, err := throttle.NewRegistry()
	require.NoError(t, err)
	assert.Panics(t, func() { r.MustGet("nope") })
}

func TestDefaultPolicies(t *testing.T) {
	r, err := throttle.NewDefaultRegistry(nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"admin", "admin_login", "auth", "cart", "general", "orders", "search"}, r.Names())

	tests := []struct {
		name     string
		window   time.Duration
		max      int
		failOpen bool
	}{
		{throttle.PolicyGeneral, 15 * time.Minute, 300, true},
		{throttle.PolicyAuth, 15 * time.Minute, 10, false},
		{throttle.PolicyAdminLogin, 15 * time.Minute, 10, false},
		{throttle.PolicyAdmin, time.Minute, 120, true},
		{throttle.PolicyOrders, time.Minute, 10, true},
		{throttle.PolicyCart, time.Minute, 60, true},
		{throttle.PolicySearch, time.Minute, 30, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := r.MustGet(tt.name)
			assert.Equal(t, tt.window, p.Window)
			assert.Equal(t, tt.max, p.Max)
			assert.Equal(t, tt.failOpen, p.FailOpen)
			assert.NotEmpty(t, p.Message)
		})
	}
}

func TestDefaultPolicies_Overrides(t *testing.T) {
	policies := throttle.DefaultPolicies(map[string]throttle.Override{
		throttle.PolicySearch: {Max: 5},
		throttle.PolicyAuth:   {Window: time.Hour},
	})

	r, err := throttle.NewRegistry(policies...)
	require.NoError(t, err)

	search := r.MustGet(throttle.PolicySearch)
	assert.Equal(t, 5, search.Max)
	assert.Equal(t, time.Minute, search.Window)

	auth := r.MustGet(throttle.PolicyAuth)
	assert.Equal(t, time.Hour, auth.Window)
	assert.Equal(t, 10, auth.Max)
}

func TestGeneralPolicySkipsOpsEndpoints(t *testing.T) {
	r, err := throttle.NewDefaultRegistry(nil)
	require.NoError(t, err)
	general := r.MustGet(throttle.PolicyGeneral)

	assert.True(t, general.ShouldSkip(httptest.NewRequest(http.MethodGet, "/health", nil)))
	assert.True(t, general.ShouldSkip(httptest.NewRequest(http.MethodGet, "/metrics", nil)))
	assert.False(t, general.ShouldSkip(httptest.NewRequest(http.MethodGet, "/products", nil)))
	assert.False(t, r.MustGet(throttle.PolicyAuth).ShouldSkip(httptest.NewRequest(http.MethodGet, "/health", nil)))
}
