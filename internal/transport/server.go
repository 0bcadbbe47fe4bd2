// Package transport is the HTTP/SSE wire protocol boundary (spec §6): a
// narrow, explicitly-out-of-core package that exercises go-chi/chi and
// go-chi/cors to expose the Session Actor's subscription and enqueue
// contract over the wire. It never touches the Entry Store or Queue Ledger
// directly — every handler goes through *internal/session.Manager and the
// Actor it returns.
//
// Grounded on internal/server/server.go (router construction, middleware
// stack, CORS options, Config/New/Start/Shutdown shape) reduced to exactly
// the endpoints SPEC_FULL.md's wire contract names, and internal/server/sse.go
// (sseWriter, heartbeat ticker) for the subscribe endpoint.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/wuhu-labs/wuhu/internal/eventhub"
	"github.com/wuhu-labs/wuhu/internal/session"
)

// Config holds server configuration.
type Config struct {
	Addr         string
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration (SSE responses have no
// write deadline, matching the teacher's DefaultConfig rationale).
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
	}
}

// Server is the HTTP server fronting a session.Manager. It also holds the
// same eventhub.Hub the Manager's Deps was constructed with, since
// subscribing to live events is the one thing the Actor itself doesn't
// expose (spec §4.9: the hub, not the actor, owns outgoing continuations).
type Server struct {
	cfg     Config
	router  *chi.Mux
	httpSrv *http.Server
	mgr     *session.Manager
	hub     *eventhub.Hub
}

// New creates a Server routing requests to mgr, subscribing new clients
// against hub.
func New(cfg Config, mgr *session.Manager, hub *eventhub.Hub) *Server {
	s := &Server{cfg: cfg, router: chi.NewRouter(), mgr: mgr, hub: hub}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)
	if s.cfg.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Link", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

func (s *Server) setupRoutes() {
	s.router.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/events", s.subscribe)
		r.Post("/queue/{lane}", s.enqueue)
		r.Delete("/queue/{lane}/{itemID}", s.cancel)
		r.Post("/follow-up", s.promptFollowUp)
		r.Post("/model", s.applyModelSelection)
		r.Post("/stop", s.stop)
	})
}

// Router returns the chi router, e.g. for tests.
func (s *Server) Router() *chi.Mux { return s.router }

// Start serves requests until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("transport: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
