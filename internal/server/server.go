// Package server exposes a read-only HTTP API over a run's output: the
// equity curve, the trade ledger, the regime history and the current
// target allocation, plus a websocket stream of regime changes.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/akrotiri/helmsman/internal/persistence"
	"github.com/akrotiri/helmsman/internal/strategy"
)

// SignalProvider exposes the latest strategy output for status endpoints.
// The engine implements it.
type SignalProvider interface {
	LastSignals() strategy.Signals
}

// Config holds server configuration.
type Config struct {
	Log       zerolog.Logger
	Port      int
	RunID     string
	Trades    *persistence.TradeRepository
	Snapshots *persistence.SnapshotRepository
	Regimes   *persistence.RegimeRepository
	Signals   SignalProvider // may be nil when no run is live
}

// Server is the HTTP server.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	runID     string
	trades    *persistence.TradeRepository
	snapshots *persistence.SnapshotRepository
	regimes   *persistence.RegimeRepository
	signals   SignalProvider
	stream    *RegimeStream
	startup   time.Time
}

// New creates the HTTP server and wires its routes.
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		runID:     cfg.RunID,
		trades:    cfg.Trades,
		snapshots: cfg.Snapshots,
		regimes:   cfg.Regimes,
		signals:   cfg.Signals,
		stream:    NewRegimeStream(cfg.Log),
		startup:   time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/equity", s.handleEquityCurve)
		r.Get("/trades", s.handleTrades)
		r.Get("/regimes", s.handleRegimes)
		r.Get("/allocation", s.handleAllocation)
		r.Get("/regimes/stream", s.stream.Handle)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

// Stream returns the regime broadcast hub so the run loop can publish
// regime changes to connected clients.
func (s *Server) Stream() *RegimeStream {
	return s.stream
}

// Router returns the underlying router, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	s.stream.Close()
	return s.server.Shutdown(ctx)
}
