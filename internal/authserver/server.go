// Package authserver is a development authorization endpoint for private and
// presence channels. Clients log in for a bearer token, then present it when
// asking for a channel signature.
package authserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Config holds server configuration
type Config struct {
	Addr      string
	AppKey    string
	AppSecret string
	JWTSecret string
	TokenTTL  time.Duration
	NoAuth    bool
	Logger    zerolog.Logger
}

// Validate checks required fields
func (c *Config) Validate() error {
	if c.AppKey == "" {
		return errors.New("AppKey is required")
	}
	if c.AppSecret == "" {
		return errors.New("AppSecret is required")
	}
	if !c.NoAuth && c.JWTSecret == "" {
		return errors.New("JWTSecret is required unless NoAuth is set")
	}
	return nil
}

// Server represents the auth HTTP server
type Server struct {
	jwtAuth    *JWTAuth
	handlers   *Handlers
	middleware *Middleware
	server     *http.Server
	log        zerolog.Logger
}

// NewServer creates a new auth server
func NewServer(config Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := config.Logger.With().Str("component", "authserver").Logger()
	jwtAuth := NewJWTAuth(config.JWTSecret, config.TokenTTL)

	s := &Server{
		jwtAuth:    jwtAuth,
		handlers:   NewHandlers(jwtAuth, config.AppKey, config.AppSecret, config.NoAuth, logger),
		middleware: NewMiddleware(jwtAuth, config.NoAuth, logger),
		log:        logger,
	}

	s.server = &http.Server{
		Addr:           config.Addr,
		Handler:        s.Routes(),
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}
	return s, nil
}

// Routes returns the HTTP handler with all routes and middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.middleware.Recovery, s.middleware.Logging, s.middleware.CORS, s.middleware.ContentType)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, "Not found", http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	r.Post("/auth/login", s.handlers.Login)
	r.With(s.middleware.AuthRequired).Post("/pusher/auth", s.handlers.ChannelAuth)
	r.Get("/health", s.handlers.Health)

	return r
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Auth server listening")
	return s.server.ListenAndServe()
}

// Serve serves on an existing listener
func (s *Server) Serve(l net.Listener) error {
	s.log.Info().Str("addr", l.Addr().String()).Msg("Auth server listening")
	return s.server.Serve(l)
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Auth returns the server's token issuer
func (s *Server) Auth() *JWTAuth {
	return s.jwtAuth
}
