package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/guided-traffic/payload-gateway/internal/config"
	"github.com/guided-traffic/payload-gateway/internal/gateway/middleware"
	"github.com/guided-traffic/payload-gateway/internal/payload"
	"github.com/sirupsen/logrus"
)

// Server represents the payload gateway server
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	config     *config.Config
	parser     *payload.Parser
	logger     *logrus.Entry
	version    string

	requestTracker *middleware.RequestTracker
	httpLogger     *middleware.Logger
	corsHandler    *middleware.CORS
	payloadReader  *middleware.Payload

	shutdownMu        sync.RWMutex
	shutdownInitiated bool
	shutdownTime      time.Time
}

// NewServer creates a new gateway server instance
func NewServer(cfg *config.Config, version string) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("failed to create gateway server: configuration is nil")
	}

	logger := logrus.WithField("component", "gateway-server")

	server := &Server{
		router:  mux.NewRouter(),
		config:  cfg,
		parser:  payload.NewParser(logrus.WithField("component", "payload-parser")),
		logger:  logger,
		version: version,
	}

	server.setupMiddleware()
	server.setupRoutes(server.router)

	server.httpServer = &http.Server{
		Addr:        cfg.BindAddress,
		Handler:     server.router,
		ReadTimeout: 0, // uploads may legitimately take long; data mode enforces client_timeout
		IdleTimeout: 60 * time.Second,
	}

	return server, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the gateway server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	// Start HTTP server in a goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		if s.config.TLS.Enabled {
			s.logger.WithFields(logrus.Fields{
				"address":   s.config.BindAddress,
				"cert_file": s.config.TLS.CertFile,
				"key_file":  s.config.TLS.KeyFile,
			}).Info("Starting HTTPS server")

			if err := s.httpServer.ListenAndServeTLS(s.config.TLS.CertFile, s.config.TLS.KeyFile); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErrChan <- fmt.Errorf("HTTPS server failed: %w", err)
			}
		} else {
			s.logger.WithField("address", s.config.BindAddress).Info("Starting HTTP server")
			if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErrChan <- fmt.Errorf("HTTP server failed: %w", err)
			}
		}
	}()

	// Wait for context cancellation or server error
	select {
	case err := <-serverErrChan:
		return err
	case <-ctx.Done():
	}

	s.markShutdown()
	s.logger.WithField("active_requests", s.requestTracker.Active()).Info("Shutting down server")

	timeout := time.Duration(s.config.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Error("Failed to gracefully shutdown server")
		return err
	}

	s.logger.Info("Server stopped")
	return nil
}

func (s *Server) markShutdown() {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()

	s.shutdownInitiated = true
	s.shutdownTime = time.Now()
}

// shutdownStateHandler reports whether shutdown has started, for the health endpoint
func (s *Server) shutdownStateHandler() (bool, time.Time) {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()

	return s.shutdownInitiated, s.shutdownTime
}
