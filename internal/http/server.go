package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"fintraka/internal/core"
	applog "fintraka/internal/log"
	"fintraka/internal/middleware/ratelimit"
	"fintraka/internal/middleware/security"
	"fintraka/internal/middleware/trace"
	"fintraka/internal/services"
)

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Addr           string
	Ledger         *services.LedgerService
	Auth           *services.AuthService
	Store          Pinger
	Logger         *applog.Logger
	AllowedOrigins []string
	// LoginRateLimit is login attempts per client IP per minute.
	LoginRateLimit int
	RequestTimeout time.Duration
}

// Server is the JSON API. Embeds http.Server so cmd can ListenAndServe.
type Server struct {
	http.Server

	ledger   *services.LedgerService
	auth     *services.AuthService
	store    Pinger
	logger   *applog.Logger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		ledger:   opts.Ledger,
		auth:     opts.Auth,
		store:    opts.Store,
		logger:   opts.Logger.WithComponent(applog.ComponentHTTP),
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.LoginRateLimit}),
		detector: security.NewDetector(),
	}
	s.tracer = trace.NewMiddleware(s.logger, s.detector.ExtractClientIP)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(opts),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(s.tracer.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.detector.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", "Retry-After", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.Timeout(opts.RequestTimeout))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, core.NotFound("resource"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeStatusError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method "+r.Method+" not allowed")
	})

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.handleRegister)
			r.With(s.limiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited)).Post("/login", s.handleLogin)
			r.With(s.requireAuth).Get("/me", s.handleMe)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Route("/categories", func(r chi.Router) {
				r.Get("/", s.handleListCategories)
				r.Post("/", s.handleCreateCategory)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetCategory)
					r.Put("/", s.handleRenameCategory)
					r.Patch("/", s.handleRenameCategory)
					r.Delete("/", s.handleDeleteCategory)
				})
			})

			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", s.handleListTransactions)
				r.Post("/", s.handleCreateTransaction)
				r.Get("/summary", s.handleSummary)
				r.Get("/spending_by_category", s.handleSpendingByCategory)
				r.Get("/monthly_trend", s.handleMonthlyTrend)
				r.Get("/export", s.handleExport)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetTransaction)
					r.Put("/", s.handleReplaceTransaction)
					r.Patch("/", s.handlePatchTransaction)
					r.Delete("/", s.handleDeleteTransaction)
				})
			})
		})
	})

	return r
}

// Shutdown stops background work and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(),
		"Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldPath, r.URL.Path)
	writeStatusError(w, http.StatusTooManyRequests, "rate_limited", "too many login attempts, try again later")
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Readiness check failed", applog.FieldError, err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
