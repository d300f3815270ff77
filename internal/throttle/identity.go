package throttle

import (
	"context"
	"strings"
)

// Identity is what the throttling core knows about the caller of one request.
type Identity struct {
	IP        string
	UserID    string // empty when the request is anonymous
	UserAgent string
}

// Authenticated reports whether a user id was resolved for the request.
func (id Identity) Authenticated() bool {
	return id.UserID != ""
}

// RateKey is the counter key for one caller under one policy. Authenticated
// callers are keyed by user id alone so one budget follows the user across
// source addresses; anonymous callers are keyed by IP.
type RateKey struct {
	IP     string
	UserID string
	Policy string
}

// KeyFor derives the RateKey for id under the named policy.
func KeyFor(policy string, id Identity) RateKey {
	return RateKey{IP: id.IP, UserID: id.UserID, Policy: policy}
}

func (k RateKey) String() string {
	var b strings.Builder
	b.WriteString("rl:")
	b.WriteString(k.Policy)
	if k.UserID != "" {
		b.WriteString(":u:")
		b.WriteString(k.UserID)
		return b.String()
	}
	b.WriteString(":ip:")
	b.WriteString(k.IP)
	return b.String()
}

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored by WithIdentity.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
