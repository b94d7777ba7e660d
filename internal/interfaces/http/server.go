// Package http provides the local HTTP interface: health checks plus
// internal endpoints for session status and account inspection.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qqgate/qqgate/internal/config"
	"github.com/qqgate/qqgate/internal/status"
	"github.com/qqgate/qqgate/pkg/pluginsdk"
)

// SessionStatusFunc returns the live per-account session snapshots.
type SessionStatusFunc func() map[string]status.Session

// AccountsFunc returns the resolved account snapshots.
type AccountsFunc func() ([]pluginsdk.AccountSnapshot, error)

// Server serves the health and internal status endpoints.
type Server struct {
	router    *gin.Engine
	cfg       *config.Config
	logger    *slog.Logger
	version   string
	startedAt time.Time

	sessionStatus SessionStatusFunc
	accounts      AccountsFunc
}

// NewServer creates the status server.
func NewServer(cfg *config.Config, logger *slog.Logger, version string) *Server {
	if cfg.Gateway.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware(logger))

	s := &Server{
		router:    router,
		cfg:       cfg,
		logger:    logger.With("component", "http"),
		version:   version,
		startedAt: time.Now(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/api/health", s.handleHealth)

	internal := s.router.Group("/api/internal")
	internal.Use(localhostOnlyMiddleware())
	{
		internal.GET("/channel-status", s.handleChannelStatus)
		internal.GET("/accounts", s.handleAccounts)
	}
}

// SetSessionStatus injects the session status callback.
func (s *Server) SetSessionStatus(fn SessionStatusFunc) {
	s.sessionStatus = fn
}

// SetAccounts injects the account listing callback.
func (s *Server) SetAccounts(fn AccountsFunc) {
	s.accounts = fn
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start runs the server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := s.getListenAddr()
	s.logger.Info("starting HTTP server", "address", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	listenErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			listenErr <- err
		}
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("status server failed to start: %w\n  -> Is another qqgate instance running on %s?", err, addr)
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case err := <-listenErr:
		return fmt.Errorf("status server runtime error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info("shutting down HTTP server")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) getListenAddr() string {
	port := s.cfg.Gateway.Port
	if port == 0 {
		port = 18791
	}

	switch s.cfg.Gateway.Bind {
	case "all":
		return fmt.Sprintf("0.0.0.0:%d", port)
	default:
		return fmt.Sprintf("127.0.0.1:%d", port)
	}
}
