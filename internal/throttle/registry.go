package throttle

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrDuplicatePolicy is returned when a name is registered twice.
var ErrDuplicatePolicy = errors.New("throttle policy already registered")

// Route classes shipped by DefaultPolicies.
const (
	PolicyGeneral    = "general"
	PolicyAuth       = "auth"
	PolicyAdminLogin = "admin_login"
	PolicyAdmin      = "admin"
	PolicyOrders     = "orders"
	PolicyCart       = "cart"
	PolicySearch     = "search"
)

// Registry maps route classes to policies. Registered policies are immutable.
type Registry struct {
	mu       sync.RWMutex
	policies map[string]Policy
}

// NewRegistry creates a registry holding the given policies.
func NewRegistry(policies ...Policy) (*Registry, error) {
	r := &Registry{policies: make(map[string]Policy, len(policies))}
	for _, p := range policies {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register validates p and stores a copy of it.
func (r *Registry) Register(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.policies[p.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePolicy, p.Name)
	}
	r.policies[p.Name] = p
	return nil
}

// Get returns a copy of the named policy.
func (r *Registry) Get(name string) (Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[name]
	return p, ok
}

// MustGet is Get for names wired at startup. It panics on unknown names.
func (r *Registry) MustGet(name string) Policy {
	p, ok := r.Get(name)
	if !ok {
		panic(fmt.Sprintf("throttle: policy %q not registered", name))
	}
	return p
}

// Names returns the registered policy names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Override replaces the window and/or max of a default policy. Zero fields
// keep the default.
type Override struct {
	Window time.Duration
	Max    int
}

// DefaultPolicies returns the marketplace route classes with overrides applied.
func DefaultPolicies(overrides map[string]Override) []Policy {
	policies := []Policy{
		{
			Name:     PolicyGeneral,
			Window:   15 * time.Minute,
			Max:      300,
			Message:  "Too many requests from this client, please try again later.",
			FailOpen: true,
			Skip:     SkipPaths("/health", "/metrics"),
		},
		{
			Name:    PolicyAuth,
			Window:  15 * time.Minute,
			Max:     10,
			Message: "Too many authentication attempts, please try again later.",
		},
		// Max stays above the login guard's lockout threshold so an account
		// locked from one address still answers with its lockout state.
		{
			Name:    PolicyAdminLogin,
			Window:  15 * time.Minute,
			Max:     10,
			Message: "Too many admin login attempts, please try again later.",
		},
		{
			Name:     PolicyAdmin,
			Window:   time.Minute,
			Max:      120,
			Message:  "Too many admin requests, please slow down.",
			FailOpen: true,
		},
		{
			Name:     PolicyOrders,
			Window:   time.Minute,
			Max:      10,
			Message:  "Too many orders placed, please wait before trying again.",
			FailOpen: true,
		},
		{
			Name:     PolicyCart,
			Window:   time.Minute,
			Max:      60,
			Message:  "Too many cart updates, please slow down.",
			FailOpen: true,
		},
		{
			Name:     PolicySearch,
			Window:   time.Minute,
			Max:      30,
			Message:  "Too many searches, please slow down.",
			FailOpen: true,
		},
	}

	for i := range policies {
		o, ok := overrides[policies[i].Name]
		if !ok {
			continue
		}
		if o.Window > 0 {
			policies[i].Window = o.Window
		}
		if o.Max > 0 {
			policies[i].Max = o.Max
		}
	}
	return policies
}

// NewDefaultRegistry builds a registry from DefaultPolicies.
func NewDefaultRegistry(overrides map[string]Override) (*Registry, error) {
	return NewRegistry(DefaultPolicies(overrides)...)
}
