package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/openrisk-labs/kestrel/internal/domain"
	"github.com/openrisk-labs/kestrel/internal/metrics"
	"github.com/openrisk-labs/kestrel/internal/pipeline"
	"github.com/openrisk-labs/kestrel/internal/rules"
)

// Server is the serve-mode HTTP API over the latest scoring run.
type Server struct {
	router  chi.Router
	handler *Handler
	srv     *http.Server
	cfg     domain.ServerConfig
}

// NewServer creates the HTTP server with all routes configured.
func NewServer(cfg *domain.Config, repo domain.Repository, cache domain.Cache, engine *rules.Engine, runner *pipeline.Runner, collector *metrics.Collector, version string) *Server {
	h := NewHandler(repo, cache, engine, runner, cfg, version)

	r := chi.NewRouter()

	// Middleware stack, outermost first.
	r.Use(CORSMiddleware)
	r.Use(RecoverMiddleware)
	r.Use(TracingMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(middleware.RealIP)
	r.Use(middleware.Compress(5))

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Handle("/metrics", collector.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/summary", h.Summary)
		r.Get("/detection", h.Detection)
		r.Get("/high-risk", h.HighRisk)
		r.Get("/transactions/{id}", h.GetTransaction)
		r.Get("/alerts", h.ListAlerts)

		r.Get("/rules", h.ListRules)
		r.Post("/rules", h.CreateRule)
		r.Post("/rules/reload", h.ReloadRules)

		r.Post("/pipeline/run", h.RunPipeline)
	})

	return &Server{
		router:  r,
		handler: h,
		cfg:     cfg.Server,
	}
}

// Router returns the underlying router, mainly for tests.
func (s *Server) Router() chi.Router {
	return s.router
}

// Start begins listening for HTTP requests. Blocks until the server
// stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeout) * time.Second,
	}

	slog.Info("starting http server", "addr", addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	slog.Info("shutting down http server")
	return s.srv.Shutdown(ctx)
}
