// Package webui exposes the engine over HTTP for scripts and tools.
//
// Routes:
//
//	GET  /healthz        → liveness plus the registered storage backends
//	POST /api/classify   → raw body, ?name=<file name>; returns the classification
//	POST /api/validate   → fileRequest with a declared schema; returns the report
//	POST /api/normalize  → fileRequest; returns the result, or CSV with ?format=csv
//	POST /api/reconcile  → {"schemas":[{"source":..,"schema":..}]}; returns the merge
//	POST /api/ingest     → fileRequest; runs the full pipeline (when configured)
package webui

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ingest/internal/config"
	"ingest/internal/ingest"
	"ingest/internal/logging"
)

// Server wraps the router and the http.Server serving it.
type Server struct {
	cfg      *config.Config
	pipeline *ingest.Pipeline
	logger   *slog.Logger
	router   *chi.Mux
	srv      *http.Server
}

// NewServer builds the routes. pipeline may be nil, in which case
// /api/ingest is not mounted.
func NewServer(cfg *config.Config, pipeline *ingest.Pipeline, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		pipeline: pipeline,
		logger:   logging.OrDefault(logger),
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.withLogger)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Post("/classify", s.handleClassify)
		r.Post("/validate", s.handleValidate)
		r.Post("/normalize", s.handleNormalize)
		r.Post("/reconcile", s.handleReconcile)
		if s.pipeline != nil {
			r.Post("/ingest", s.handleIngest)
		}
	})
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on cfg.HTTP.Addr until Shutdown.
func (s *Server) ListenAndServe() error {
	s.srv = &http.Server{
		Addr:              s.cfg.HTTP.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.logger.Info("http server listening", "addr", s.cfg.HTTP.Addr)
	return s.srv.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// withLogger makes the server logger the request's context logger.
func (s *Server) withLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(logging.WithContext(r.Context(), s.logger)))
	})
}

// requestLogger logs one line per request with its status and duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		logging.FromContext(r.Context()).Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", r.RemoteAddr,
		)
	})
}
