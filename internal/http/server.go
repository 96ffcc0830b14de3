// Package http serves the JSON API, the realtime websocket endpoint and the
// operational endpoints.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"sourverse/internal/auth"
	applog "sourverse/internal/log"
	"sourverse/internal/metrics"
	"sourverse/internal/middleware/ratelimit"
	"sourverse/internal/middleware/security"
	"sourverse/internal/middleware/trace"
	"sourverse/internal/realtime"
	"sourverse/internal/services"
)

const maxBodyBytes = 1 << 20

// Config lists the collaborators the router dispatches to. Hub, Metrics and
// Ready may be nil.
type Config struct {
	Addr               string
	AllowedOrigins     []string
	RateLimitPerMinute int

	Accounts    *services.AccountService
	Projects    *services.ProjectService
	Investments *services.InvestmentService
	Issuer      *auth.Issuer
	Hub         *realtime.Hub
	Metrics     *metrics.Metrics

	// Ready backs /readyz; nil means always ready
	Ready func(context.Context) error

	Logger *applog.Logger
}

type Server struct {
	http.Server
	accounts    *services.AccountService
	projects    *services.ProjectService
	investments *services.InvestmentService
	ready       func(context.Context) error
	logger      *applog.Logger

	rateLimiter  *ratelimit.Limiter
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config) *Server {
	logger := applog.OrDefault(cfg.Logger, applog.ComponentHTTP)

	s := &Server{
		Server: http.Server{
			Addr:              cfg.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		accounts:    cfg.Accounts,
		projects:    cfg.Projects,
		investments: cfg.Investments,
		ready:       cfg.Ready,
		logger:      logger,
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
	}

	detector := security.NewDetector(false, logger)
	tracer := trace.NewMiddleware(detector.ExtractClientIP, observeRequest(cfg.Metrics), logger)

	r := chi.NewRouter()
	r.Use(tracer.Middleware)
	r.Use(chimw.Recoverer)
	r.Use(applog.Middleware(logger))
	r.Use(applog.RequestIDMiddleware(trace.RequestIDFromRequest))
	r.Use(detector.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(security.CORS(cfg.AllowedOrigins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, messageResponse{Message: "Route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, messageResponse{Message: "Method not allowed"})
	})

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	if cfg.Hub != nil {
		r.Method(http.MethodGet, "/ws", realtime.Handler(cfg.Hub, realtime.HandlerConfig{
			AllowedOrigins: cfg.AllowedOrigins,
			Logger:         logger,
			Metrics:        cfg.Metrics,
		}))
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(s.rateLimiter.Middleware(detector.ExtractClientIP, s.handleRateLimited))
		if cfg.Issuer != nil {
			api.Use(cfg.Issuer.Middleware(s.handleAuthError))
		}

		api.Post("/register", s.handleRegister)
		api.Post("/login", s.handleLogin)
		api.Get("/profile", s.handleProfile)

		api.Get("/projects", s.handleListProjects)
		api.Post("/projects", s.handleCreateProject)

		api.Get("/wallet", s.handleWallet)
		api.Post("/wallet/add", s.handleTopUp)

		api.Post("/invest", s.handleInvest)
		api.Get("/investments", s.handleInvestments)
	})

	s.Handler = r
	return s
}

// Shutdown stops the rate limiter and gracefully shuts down the HTTP server.
// Hijacked websocket connections are not tracked by http.Server; they end
// when the hub stops.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func observeRequest(m *metrics.Metrics) trace.Observer {
	return func(r *http.Request, status int, d time.Duration) {
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.ObserveRequest(route, r.Method, status, d)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.WarnContext(ctx, "Readiness check failed", applog.FieldError, err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, errorResponse{
		Message: "Rate limit exceeded. Please try again later.",
		Error:   "rate_limited",
	})
}

func (s *Server) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeError(w, r, err)
}
