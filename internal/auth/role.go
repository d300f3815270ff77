package auth

import (
	"net/http"
	"slices"

	pkghttp "github.com/BradenHooton/marketguard/pkg/http"
)

// RequireRole admits requests whose session claims carry one of roles.
// It must run after RequireAdminSession.
func RequireRole(roles ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				pkghttp.WriteUnauthorized(w, "unauthorized")
				return
			}
			if !slices.Contains(roles, claims.Role) {
				pkghttp.WriteForbidden(w, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
