// Package api provides the HTTP surface of the sync engine: pass triggers,
// status, the unmatched registry, history and metrics.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/coversync/coversync-server/internal/domain"
	"github.com/coversync/coversync-server/internal/reconcile"
)

// Loop is the reconciliation loop as seen by the API.
type Loop interface {
	Request(trigger domain.Trigger) reconcile.RequestResult
	Status() reconcile.Status
}

// Registry exposes the persisted sync state.
type Registry interface {
	ListUnmatched(ctx context.Context) ([]domain.UnmatchedEntry, error)
	ListHistory(ctx context.Context, entryID string) ([]domain.HistoryRecord, error)
}

// Options configures the server.
type Options struct {
	Version        string
	TriggerEnabled bool
	// Metrics is mounted at /metrics when set.
	Metrics        http.Handler
	AllowedOrigins []string
	// Sets enables POST /api/v1/mediux/sets when set.
	Sets SetQueue
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	loop     Loop
	registry Registry
	opts     Options
	router   *chi.Mux
	api      huma.API
	logger   *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(loop Loop, registry Registry, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	s := &Server{
		loop:     loop,
		registry: registry,
		opts:     opts,
		router:   chi.NewRouter(),
		logger:   logger,
	}

	s.setupMiddleware()

	humaConfig := huma.DefaultConfig("Coversync API", opts.Version)
	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.registerHealthRoutes()
	s.registerPassRoutes()
	s.registerRegistryRoutes()
	if opts.Sets != nil {
		s.registerSetRoutes()
	}

	if opts.Metrics != nil {
		s.router.Handle("/metrics", opts.Metrics)
	}

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API, mainly for tests.
func (s *Server) API() huma.API {
	return s.api
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware() {
	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
}

// requestLogger logs one line per request at debug level, or warn for
// server errors.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		level := slog.LevelDebug
		if ww.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
