package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/portfolio-stream/internal/connection"
	"github.com/rickgao/portfolio-stream/internal/metrics"
	"github.com/rickgao/portfolio-stream/internal/session"
	"github.com/rickgao/portfolio-stream/internal/store"
)

// StoreReader is the read side of the store.
type StoreReader interface {
	Snapshot() store.Snapshot
	Instruments() []store.Instrument
	Instrument(symbol string) (store.Instrument, bool)
	PnL() map[string]store.PnLRow
	CoreTotals() store.CoreTotals
	Ledger() []store.LedgerEntry
	Errors() []store.ErrorRecord
	Version() uint64
}

// StateSource reports the connection lifecycle.
type StateSource interface {
	State() connection.State
}

// Controls are the user-triggered connection actions.
type Controls interface {
	Reconnect()
	Disconnect()
	Logout(ctx context.Context) error
	Status() session.GateStatus
}

// SubscriptionSource reports active instrument interest.
type SubscriptionSource interface {
	Active() map[string]int
}

// Config holds server configuration
type Config struct {
	Addr          string
	CORSOrigins   []string
	Store         StoreReader
	Conn          StateSource
	Controls      Controls
	Subscriptions SubscriptionSource
	Registry      *prometheus.Registry // nil disables /metrics
	Logger        *slog.Logger
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	cfg    Config
	log    *slog.Logger
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		log:    logger.With("component", "server"),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(s.loggingMiddleware)

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/instruments", s.handleInstruments)
		r.Get("/instruments/{symbol}", s.handleInstrument)
		r.Get("/pnl", s.handlePnL)
		r.Get("/ledger", s.handleLedger)
		r.Get("/errors", s.handleErrors)
		r.Get("/subscriptions", s.handleSubscriptions)

		r.Route("/connection", func(r chi.Router) {
			r.Post("/connect", s.handleConnect)
			r.Post("/disconnect", s.handleDisconnect)
		})
		r.Post("/logout", s.handleLogout)
	})

	if s.cfg.Registry != nil {
		s.router.Handle("/metrics", metrics.Handler(s.cfg.Registry))
	}
}

// Start starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.log.Info("starting HTTP server", "addr", s.cfg.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
