package gateway

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/BradenHooton/marketguard/internal/auth"
	"github.com/BradenHooton/marketguard/internal/throttle"
	pkghttp "github.com/BradenHooton/marketguard/pkg/http"
)

// Headers the gateway owns. Values supplied by clients are always dropped.
const (
	HeaderClientIP  = "X-Marketguard-Client-IP"
	HeaderAdminUser = "X-Marketguard-Admin-User"
	HeaderAdminRole = "X-Marketguard-Admin-Role"
)

// gatewayResponseHeaders are set by the gateway on every response; backend
// copies would otherwise be appended as duplicates.
var gatewayResponseHeaders = []string{
	"X-Frame-Options",
	"X-Content-Type-Options",
	"Referrer-Policy",
	"Strict-Transport-Security",
}

// Config describes the storefront backend.
type Config struct {
	URL            string
	ResponseHeader time.Duration
}

// NewUpstream returns a reverse proxy to the storefront backend. Requests that
// reach it have already passed screening and their policy limiter.
func NewUpstream(cfg Config, logger *slog.Logger) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url: %w", err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, fmt.Errorf("upstream url must be http or https, got %q", cfg.URL)
	}
	if target.Host == "" {
		return nil, errors.New("upstream url has no host")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.ResponseHeader > 0 {
		transport.ResponseHeaderTimeout = cfg.ResponseHeader
	}

	logger = logger.With(slog.String("component", "gateway"))

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			rewriteIdentity(pr)
		},
		Transport: transport,
		ModifyResponse: func(resp *http.Response) error {
			for _, h := range gatewayResponseHeaders {
				resp.Header.Del(h)
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("upstream request failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Any("error", err))
			pkghttp.WriteBadGateway(w)
		},
	}, nil
}

// rewriteIdentity forwards the resolved client address and, for requests that
// passed RequireAdminSession, the admin principal. The bearer token itself is
// not forwarded on admin routes.
func rewriteIdentity(pr *httputil.ProxyRequest) {
	out := pr.Out.Header
	out.Del(HeaderClientIP)
	out.Del(HeaderAdminUser)
	out.Del(HeaderAdminRole)

	if id, ok := throttle.IdentityFrom(pr.In.Context()); ok && id.IP != "" {
		out.Set(HeaderClientIP, id.IP)
	}

	if claims := auth.ClaimsFromContext(pr.In.Context()); claims != nil {
		out.Set(HeaderAdminUser, claims.UserID)
		out.Set(HeaderAdminRole, claims.Role)
		out.Del("Authorization")
	}
}
