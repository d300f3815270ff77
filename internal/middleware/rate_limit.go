package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	pkghttp "github.com/BradenHooton/marketguard/pkg/http"
)

// OpsRateLimit is a fixed in-process limit for operational endpoints such as
// /metrics that sit outside the policy table. It keys by the client address
// left in RemoteAddr by pkghttp.TrustedRealIP.
func OpsRateLimit(requestsPerMinute int) func(next http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteRateLimited(w, "", 60)
		}),
	)
}
