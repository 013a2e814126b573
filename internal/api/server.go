package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/kanadia-gov/kestrel/internal/domain"
	"github.com/kanadia-gov/kestrel/internal/refdata"
	"github.com/kanadia-gov/kestrel/internal/rules"
	"github.com/kanadia-gov/kestrel/internal/screening"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, directives *rules.DirectiveEngine, svc *screening.Service, refData *refdata.Service, version string) *Server {
	handler := NewHandler(repo, cache, bus, engine, directives, svc, refData, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no checkpoint required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (checkpoint required)
	router.Route("/", func(r chi.Router) {
		r.Use(CheckpointMiddleware)

		// Record screening
		r.Post("/screen", handler.Screen)

		// Decision retrieval
		r.Get("/decisions/{id}", handler.GetDecision)

		// Entry case retrieval
		r.Get("/entries/{id}", handler.GetEntry)
		r.Get("/entries/{id}/decision", handler.GetEntryDecision)

		// Watchlist management
		r.Get("/watchlist", handler.ListWatchlist)
		r.Put("/watchlist", handler.UpsertWatchlistEntry)
		r.Delete("/watchlist/{passport}", handler.DeleteWatchlistEntry)

		// Country policy management
		r.Get("/policies", handler.ListPolicies)
		r.Get("/policies/{code}", handler.GetPolicy)
		r.Put("/policies/{code}", handler.UpsertPolicy)

		// Reference data reload
		r.Post("/refdata/reload", handler.ReloadRefData)

		// Directive management
		r.Get("/directives", handler.ListDirectives)
		r.Get("/directives/{id}", handler.GetDirective)
		r.Post("/directives", handler.CreateDirective)
		r.Delete("/directives/{id}", handler.DeleteDirective)
		r.Post("/directives/reload", handler.ReloadDirectives)
	})

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
