package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/lumibank/backend/internal/auth"
	"github.com/lumibank/backend/internal/config"
	"github.com/lumibank/backend/internal/http/handlers"
	"github.com/lumibank/backend/internal/ledger"
	"github.com/lumibank/backend/internal/middleware"
	"github.com/lumibank/backend/internal/session"
	"github.com/lumibank/backend/internal/storage"
)

// Server wraps an http.Server with configured routes.
type Server struct {
	inner *http.Server
}

// New wires up services, middleware, and routes, and returns a ready server.
func New(cfg config.Config, store storage.Store, logger *slog.Logger) *Server {
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.SessionTTL)
	sessions := session.NewAuthority(store, tokens, cfg.SessionTTL, logger)
	engine := ledger.NewEngine(store, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(time.Now()).Register(mux)
	handlers.NewAuthHandler(store, sessions, cfg.SessionTTL, logger).Register(mux)
	handlers.NewAccountHandler(engine, logger).Register(mux)

	handler := middleware.CORS(cfg.CORSOrigins,
		middleware.Logging(logger,
			middleware.WithIdentity(sessions, mux)))

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{inner: httpServer}
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
