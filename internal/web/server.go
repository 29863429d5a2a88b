// Package web provides the HTTP API that accepts sales files for import.
package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/salesimport/internal/config"
	"github.com/JonMunkholm/salesimport/internal/database"
	"github.com/JonMunkholm/salesimport/internal/platform"
	"github.com/JonMunkholm/salesimport/internal/queue"
	"github.com/JonMunkholm/salesimport/internal/web/middleware"
)

// Uploads stores uploaded files until their import job releases them.
type Uploads interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
	Delete(ctx context.Context, handle string) error
}

// Enqueuer schedules an import of a stored file.
type Enqueuer interface {
	Enqueue(ctx context.Context, platformName, handle string) (string, error)
}

// RunLookup returns recorded import runs.
type RunLookup interface {
	Get(ctx context.Context, jobID string) (*database.Run, error)
}

// QueueStatus reports how many import slots are in use.
type QueueStatus interface {
	Status() queue.RunLimiterStatus
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators the handlers call.
type Deps struct {
	Platforms platform.Resolver
	Uploads   Uploads
	Scheduler Enqueuer
	// Runs is optional; without it job status lookups return 404.
	Runs RunLookup
	// Queue is optional; without it the queue status route is not mounted.
	Queue  QueueStatus
	Checks map[string]HealthCheck
}

// Server is the HTTP server for the import service.
type Server struct {
	cfg    *config.Config
	deps   Deps
	router *chi.Mux
	server *http.Server
}

// NewServer creates a new Server instance.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		router: chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Server.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
	}
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	if s.cfg.Metrics.Enabled {
		s.router.Handle(s.cfg.Metrics.Path, promhttp.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s.cfg.Server.RequireAPIKey, s.cfg.Server.APIKeys))

		upload := r
		if n := s.cfg.Server.UploadRateLimit; n > 0 {
			upload = r.With(newRateLimiter(n, time.Minute).middleware)
		}
		upload.Post("/import-data", s.handleImportData)

		r.Get("/import-runs/{jobID}", s.handleGetRun)
		if s.deps.Queue != nil {
			r.Get("/import-queue", s.handleQueueStatus)
		}
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// rateLimiter is a fixed-window request limiter per client IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // requests per window
	window   time.Duration // time window
	now      func() time.Time
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		now:      time.Now,
	}
}

// allow checks if the request should be allowed and consumes a token if so.
// Stale visitors are dropped as they are encountered.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for k, v := range rl.visitors {
		if now.Sub(v.lastReset) > rl.window*2 {
			delete(rl.visitors, k)
		}
	}

	v, exists := rl.visitors[ip]
	if !exists || now.Sub(v.lastReset) > rl.window {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastReset: now}
		return true
	}

	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

// middleware returns an HTTP middleware that rate limits by IP. RemoteAddr
// has already been rewritten by TrustedRealIP.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(middleware.ClientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
				Error:   "rate limit exceeded",
				Message: "Too many uploads from this address",
				Action:  "Wait a minute and try again",
				Code:    "HTTP429",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
