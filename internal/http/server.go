package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	applog "budgets/internal/log"
	"budgets/internal/middleware/ratelimit"
	"budgets/internal/middleware/security"
	"budgets/internal/middleware/trace"
)

// requestTimeout bounds the work a single request may do against the store.
const requestTimeout = 7 * time.Second

// Server wraps http.Server with the API routes and the middleware that needs
// stopping on shutdown.
type Server struct {
	http.Server
	svc          BudgetService
	logger       *applog.Logger
	rateLimiter  *ratelimit.Limiter
	detector     *security.Detector
	tracer       *trace.Middleware
	shutdownOnce sync.Once
}

// Options tune the server. Zero values fall back to defaults.
type Options struct {
	RateLimit ratelimit.Config
	Timeout   time.Duration
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc BudgetService, logger *applog.Logger, opts Options) *Server {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	if opts.RateLimit.RequestsPerMinute <= 0 {
		opts.RateLimit = ratelimit.DefaultConfig()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = requestTimeout
	}

	detector := security.NewDetector()
	s := &Server{
		svc:         svc,
		logger:      logger.WithComponent(applog.ComponentHTTP),
		rateLimiter: ratelimit.NewLimiter(opts.RateLimit),
		detector:    detector,
		tracer:      trace.NewMiddleware(detector.ExtractClientIP),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /users", s.handleEnsureUser)
	mux.HandleFunc("GET /users/{email}/budgets", s.handleListBudgets)
	mux.HandleFunc("POST /users/{email}/budgets", s.handleCreateBudget)
	mux.HandleFunc("GET /users/{email}/transactions", s.handleListTransactions)
	mux.HandleFunc("GET /users/{email}/dashboard", s.handleDashboard)

	mux.HandleFunc("GET /budgets/{id}", s.handleGetBudget)
	mux.HandleFunc("DELETE /budgets/{id}", s.handleDeleteBudget)
	mux.HandleFunc("POST /budgets/{id}/transactions", s.handleAddTransaction)

	mux.HandleFunc("DELETE /transactions/{id}", s.handleDeleteTransaction)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.middleware(mux, opts.Timeout),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      opts.Timeout + 3*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// middleware wraps h, outermost first: request logger, tracing, security
// headers, suspicious request detection, write rate limiting, timeout.
func (s *Server) middleware(h http.Handler, timeout time.Duration) http.Handler {
	h = withTimeout(timeout)(h)
	h = s.rateLimiter.Middleware(s.detector.ExtractClientIP, s.onRateLimited)(h)
	h = s.detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.tracer.Middleware(h)
	return applog.Middleware(s.logger)(h)
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	NewJSONResponse().
		Status(http.StatusTooManyRequests).
		Body(errorBody{Error: "rate limit exceeded, retry later", Kind: "rate_limited"}).
		Write(w)
}

// withTimeout gives every request a context deadline.
func withTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Shutdown gracefully shuts down the server and the rate limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
