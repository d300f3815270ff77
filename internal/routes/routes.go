package routes

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/marketguard/internal/auth"
	"github.com/BradenHooton/marketguard/internal/handlers"
	"github.com/BradenHooton/marketguard/internal/middleware"
	"github.com/BradenHooton/marketguard/internal/throttle"
	pkghttp "github.com/BradenHooton/marketguard/pkg/http"
)

// AdminRoles may use the proxied admin API.
var AdminRoles = []string{"admin"}

// Deps is everything the router needs. Upstream may be nil, in which case
// only the admin and ops endpoints are served.
type Deps struct {
	Registry   *throttle.Registry
	Throttler  *middleware.Throttler
	Tokens     *auth.TokenManager
	Sessions   auth.SessionValidator
	AdminAuth  *handlers.AdminAuthHandler
	Health     *handlers.HealthHandler
	Metrics    http.Handler
	IPResolver *pkghttp.IPResolver
	Upstream   http.Handler

	CORS           *middleware.CORSConfig
	Env            string
	MetricsPerMin  int
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// NewRouter builds the HTTP surface. Every request is identified first; the
// ops endpoints are mounted before screening so probes and scrapers are
// never throttled by the storefront policies.
func NewRouter(d Deps) chi.Router {
	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(pkghttp.TrustedRealIP(d.IPResolver))
	router.Use(middleware.Identify(auth.NewLiveClaims(d.Tokens, d.Sessions)))
	router.Use(middleware.SecureLogger(d.Logger))
	router.Use(chimw.Recoverer)
	router.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: d.Env}))
	if d.RequestTimeout > 0 {
		router.Use(chimw.Timeout(d.RequestTimeout))
	}

	router.With(middleware.APIHeaders).Get("/health", d.Health.Health)
	if d.Metrics != nil {
		router.With(middleware.APIHeaders, middleware.OpsRateLimit(d.MetricsPerMin)).Method(http.MethodGet, "/metrics", d.Metrics)
	}

	policy := d.Registry.MustGet
	limit := d.Throttler.Limit

	router.Group(func(r chi.Router) {
		if d.CORS != nil {
			r.Use(middleware.CORS(d.CORS))
		}
		r.Use(d.Throttler.Screen())
		r.Use(limit(policy(throttle.PolicyGeneral)))

		RegisterAdminRoutes(r, d, limit(policy(throttle.PolicyAdminLogin)), limit(policy(throttle.PolicyAdmin)))

		if d.Upstream != nil {
			RegisterStorefrontRoutes(r, d.Upstream, func(name string) func(http.Handler) http.Handler {
				return limit(policy(name))
			})
		}
	})

	return router
}

// RegisterAdminRoutes mounts the admin login flow and session endpoints.
func RegisterAdminRoutes(r chi.Router, d Deps, loginLimit, adminLimit func(http.Handler) http.Handler) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.APIHeaders)
		r.With(loginLimit).Post("/login", d.AdminAuth.Login)
		r.With(loginLimit).Post("/login/verify", d.AdminAuth.VerifyTwoFactor)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdminSession(d.Tokens, d.Sessions, d.Logger))
			r.Use(adminLimit)

			r.Get("/session", d.AdminAuth.Session)
			r.Post("/logout", d.AdminAuth.Logout)
			r.Post("/logout/all", d.AdminAuth.LogoutAll)
		})
	})

	if d.Upstream == nil {
		return
	}

	// Admin API calls are proxied with the verified principal attached.
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(auth.RequireAdminSession(d.Tokens, d.Sessions, d.Logger))
		r.Use(auth.RequireRole(AdminRoles...))
		r.Use(adminLimit)
		r.Handle("/*", d.Upstream)
	})
}

// RegisterStorefrontRoutes maps storefront route classes to their policies and
// forwards admitted requests to the backend. Anything unmatched is proxied
// under the general policy alone.
func RegisterStorefrontRoutes(r chi.Router, upstream http.Handler, limit func(policy string) func(http.Handler) http.Handler) {
	authLimit := onMethods(limit(throttle.PolicyAuth), http.MethodPost)
	r.With(authLimit).Handle("/api/auth/login", upstream)
	r.With(authLimit).Handle("/api/auth/register", upstream)
	r.With(authLimit).Handle("/api/auth/password/*", upstream)

	ordersLimit := onMethods(limit(throttle.PolicyOrders), http.MethodPost)
	r.With(ordersLimit).Handle("/api/orders", upstream)
	r.With(ordersLimit).Handle("/api/checkout", upstream)

	cartLimit := limit(throttle.PolicyCart)
	r.With(cartLimit).Handle("/api/cart", upstream)
	r.With(cartLimit).Handle("/api/cart/*", upstream)

	searchLimit := limit(throttle.PolicySearch)
	r.With(searchLimit).Handle("/api/search", upstream)
	r.With(searchLimit).Handle("/api/products/search", upstream)

	r.Handle("/*", upstream)
}

// onMethods applies mw only to the listed methods. Registering the route
// for a single method would make chi answer 405 for the others instead of
// proxying them.
func onMethods(mw func(http.Handler) http.Handler, methods ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limited := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if slices.Contains(methods, r.Method) {
				limited.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
