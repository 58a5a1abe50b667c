package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Dependencies, version string) *Server {
	handler := NewHandler(deps, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	router.Route("/transactions", func(r chi.Router) {
		r.Get("/", handler.ListTransactions)
		r.Post("/score", handler.ScoreTransaction)
		r.Post("/generate", handler.GenerateTransactions)
		r.Get("/{id}", handler.GetTransaction)
	})

	router.Get("/scoring/factors", handler.ListFactors)
	router.Get("/scoring/reasons", handler.ListReasons)

	router.Route("/clusters", func(r chi.Router) {
		r.Get("/", handler.ListClusters)
		r.Post("/generate", handler.GenerateCluster)
		r.Post("/analyze", handler.AnalyzeCluster)
		r.Get("/{id}", handler.GetCluster)
		r.Get("/{id}/sar", handler.ClusterSAR)
	})

	router.Route("/stream", func(r chi.Router) {
		r.Get("/", handler.StreamStatus)
		r.Post("/start", handler.StartStream)
		r.Post("/stop", handler.StopStream)
		r.Post("/reset", handler.ResetStream)
	})

	router.Route("/cases", func(r chi.Router) {
		r.Get("/", handler.ListCases)
		r.Post("/", handler.OpenCase)
		r.Get("/{id}", handler.GetCase)
		r.Post("/{id}/transition", handler.TransitionCase)
		r.Post("/{id}/evidence", handler.CompleteEvidence)
		r.Post("/{id}/notes", handler.AddNote)
	})

	router.Get("/audit", handler.ListAudit)
	router.Get("/audit/export", handler.ExportAudit)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
