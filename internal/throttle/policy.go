package throttle

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"
)

// ErrInvalidPolicy is returned when a policy cannot be registered.
var ErrInvalidPolicy = errors.New("invalid throttle policy")

// Policy describes one route class: at most Max requests per Window for a key.
//
// Policies are values. The registry hands out copies, so a Policy obtained
// from it can never change what other callers see.
type Policy struct {
	Name    string
	Window  time.Duration
	Max     int
	Message string

	// FailOpen admits requests when the counter store cannot be reached.
	// When false the request is rejected with a service-unavailable error.
	FailOpen bool

	// Skip bypasses evaluation entirely for matching requests.
	Skip func(r *http.Request) bool

	// Key overrides the key suffix derived from the identity. The limiter
	// always prefixes it with the policy name.
	Key func(id Identity) string

	// Tightened is set on the ephemeral copies produced under load.
	Tightened bool
}

// Validate checks the fields the limiter depends on.
func (p Policy) Validate() error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidPolicy)
	case p.Window < time.Millisecond:
		return fmt.Errorf("%w: %s: window must be at least 1ms", ErrInvalidPolicy, p.Name)
	case p.Max < 1:
		return fmt.Errorf("%w: %s: max must be positive", ErrInvalidPolicy, p.Name)
	}
	return nil
}

// ShouldSkip reports whether r bypasses this policy.
func (p Policy) ShouldSkip(r *http.Request) bool {
	return p.Skip != nil && p.Skip(r)
}

// CounterKey is the store key the policy uses for id.
func (p Policy) CounterKey(id Identity) string {
	if p.Key != nil {
		return "rl:" + p.Name + ":" + p.Key(id)
	}
	return KeyFor(p.Name, id).String()
}

// Tighten returns a stricter copy: Max scaled by factor (at least 1), same
// window and same key namespace so a client never gets a fresh budget.
func (p Policy) Tighten(factor float64) Policy {
	if factor <= 0 || factor >= 1 {
		return p
	}
	tight := p
	tight.Max = int(math.Floor(float64(p.Max) * factor))
	if tight.Max < 1 {
		tight.Max = 1
	}
	tight.Tightened = true
	return tight
}

// SkipPaths builds a Skip predicate matching exact request paths.
func SkipPaths(paths ...string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.URL.Path]
		return ok
	}
}
