package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/quillboard/quillboard/internal/gateway/metrics"
	"github.com/quillboard/quillboard/internal/gateway/service"
	"github.com/quillboard/quillboard/internal/gateway/store"
	"github.com/quillboard/quillboard/pkg/httpx"
	"github.com/quillboard/quillboard/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	// Store is nil in remote mode; readyz degrades gracefully.
	Store store.Store

	Backend        service.Backend
	RefreshService *service.RefreshService
	Gate           *service.Gate
	Cookies        CookieConfig

	// App is the protected application the gate fronts. Everything not
	// matched by an auth or system route lands here, gated.
	App http.Handler
}

func NewRouter(buildVersion string, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerSystem()
	r.registerApp()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	// POST /login - strict rate limit (authentication attempts)
	loginHandler := &LoginHandler{Backend: r.Backend, Cookies: r.Cookies}
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(loginHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /refresh - moderate rate limit; browsers retry refreshes more
	// eagerly than logins
	refreshHandler := &RefreshHandler{
		Refresher:   r.RefreshService,
		BackendName: r.Backend.Name(),
		Cookies:     r.Cookies,
	}
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(refreshHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may
	// poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.Store),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /metrics", metrics.Handler())
}

func (r *Router) registerApp() {
	// Dispatch to r.App at request time so the protected application can
	// be installed after route registration.
	r.Mux.Handle("/", httpx.Chain(http.HandlerFunc(r.serveApp),
		GateMiddleware(r.Gate, r.Cookies),
	))
}

func (r *Router) serveApp(w http.ResponseWriter, req *http.Request) {
	if r.App == nil {
		http.NotFound(w, req)
		return
	}
	r.App.ServeHTTP(w, req)
}
