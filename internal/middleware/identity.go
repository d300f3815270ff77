package middleware

import (
	"net/http"

	"github.com/go-chi/httprate"

	"github.com/BradenHooton/marketguard/internal/models"
	"github.com/BradenHooton/marketguard/internal/throttle"
)

// ClaimsResolver returns the claims of a request's bearer token, or nil
type ClaimsResolver interface {
	ClaimsFromRequest(r *http.Request) *models.TokenClaims
}

// Identify stores the caller's throttle.Identity in the request context.
// pkghttp.TrustedRealIP must run first so RemoteAddr is the client address.
// An invalid or missing token leaves the identity anonymous; it never rejects.
func Identify(claims ClaimsResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(throttle.WithIdentity(r.Context(), resolveIdentity(r, claims))))
		})
	}
}

func resolveIdentity(r *http.Request, claims ClaimsResolver) throttle.Identity {
	ip, err := httprate.KeyByIP(r)
	if err != nil || ip == "" {
		ip = r.RemoteAddr
	}

	id := throttle.Identity{IP: ip, UserAgent: r.UserAgent()}
	if claims != nil {
		if c := claims.ClaimsFromRequest(r); c != nil {
			id.UserID = c.UserID
		}
	}
	return id
}

// identityOf returns the stored identity, resolving an anonymous one when
// Identify did not run.
func identityOf(r *http.Request) throttle.Identity {
	if id, ok := throttle.IdentityFrom(r.Context()); ok {
		return id
	}
	return resolveIdentity(r, nil)
}
