package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/tallyhq/tally/internal/auth"
	"github.com/tallyhq/tally/internal/database"
	"github.com/tallyhq/tally/internal/web/handlers"
	"github.com/tallyhq/tally/internal/web/middleware"
	"github.com/tallyhq/tally/internal/web/sse"
)

// Server represents the web server
type Server struct {
	db           *database.DB
	port         int
	bind         string
	allowedNet   *net.IPNet
	adminUser    string
	router       *chi.Mux
	authService  *auth.Service
	broker       *sse.Broker
	handlers     *handlers.Handlers
	pingInterval time.Duration
}

// Options configures a Server beyond its required collaborators.
type Options struct {
	Port         int
	Bind         string
	AllowedNet   *net.IPNet
	AdminUser    string
	PingInterval time.Duration // websocket keepalive interval
	IsDev        bool
}

// NewServer creates a new web server
func NewServer(db *database.DB, authService *auth.Service, google *auth.GoogleVerifier, opts Options) *Server {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}

	s := &Server{
		db:           db,
		port:         opts.Port,
		bind:         opts.Bind,
		allowedNet:   opts.AllowedNet,
		adminUser:    opts.AdminUser,
		router:       chi.NewRouter(),
		authService:  authService,
		broker:       sse.NewBroker(),
		pingInterval: opts.PingInterval,
	}
	s.handlers = handlers.New(db, authService, google, s.broker, opts.IsDev)

	s.setupRoutes()
	return s
}

// Broker returns the event broker for broadcasting ledger events
func (s *Server) Broker() *sse.Broker {
	return s.broker
}

// Router returns the root handler. Exposed for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := s.router
	h := s.handlers

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.AllowSubnet(s.allowedNet))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.Health)

	// Google sign-in round trip
	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(60 * time.Second))
		r.Get("/auth/login", h.GoogleLogin)
		r.Get("/auth/callback", h.GoogleCallback)
		r.Get("/auth/logout", h.Logout)
	})

	r.Route("/api", func(r chi.Router) {
		// Ledger operations acting on the caller's own account
		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(60 * time.Second))
			r.Use(middleware.ResolveSession(s.authService))
			r.Post("/users", h.RegisterOrTopUp)
			r.Put("/users", h.DebitToken)
		})

		// Administrative surface
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin(s.authService, s.adminUser))
			r.With(chimiddleware.Timeout(60 * time.Second)).Get("/users", h.ListUsers)
			// Long-lived event feeds stay outside the timeout group
			r.Get("/events", s.broker.ServeHTTP)
			r.Get("/ws", s.handleWebSocket)
		})
	})
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	var addr string
	if s.bind != "" {
		addr = fmt.Sprintf("%s:%d", s.bind, s.port)
	} else {
		addr = fmt.Sprintf(":%d", s.port)
	}

	server := &http.Server{
		Addr:    addr,
		Handler: s.router,
		// ReadTimeout is for reading request body
		ReadTimeout: 15 * time.Second,
		// WriteTimeout disabled (0) to allow SSE/websocket long-lived connections
		// Chi middleware timeout (60s) protects regular requests
		WriteTimeout: 0,
		// IdleTimeout for keep-alive connections between requests
		IdleTimeout: 120 * time.Second,
	}

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down HTTP server")
		// Stop the broker first to close all feed connections gracefully
		s.broker.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}
