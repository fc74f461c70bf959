// Package server owns the HTTP listener for the editor API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/AtRiskMedia/mediakit-go/internal/application/container"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/mediakit-go/internal/presentation/http/routes"
	"github.com/AtRiskMedia/mediakit-go/pkg/config"
)

// Options holds listener settings. Zero timeouts are left unset.
type Options struct {
	Addr              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

// OptionsFromConfig builds Options from the environment configuration.
func OptionsFromConfig() Options {
	return Options{
		Addr:              ":" + config.Port,
		ReadTimeout:       config.ServerReadTimeout,
		ReadHeaderTimeout: config.ServerReadHeaderTimeout,
		WriteTimeout:      config.ServerWriteTimeout,
		IdleTimeout:       config.ServerIdleTimeout,
	}
}

// Server serves one handler on one listener. It binds in Listen, so the real
// address is known before requests are accepted, even for port 0.
type Server struct {
	httpServer *http.Server
	logger     *logging.ChanneledLogger

	mu       sync.Mutex
	listener net.Listener
	serving  bool
	ready    chan struct{}
}

// New wraps handler. A nil logger discards output.
func New(handler http.Handler, opts Options, logger *logging.ChanneledLogger) *Server {
	if logger == nil {
		logger = logging.NewDiscardLogger(nil)
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              opts.Addr,
			Handler:           handler,
			ReadTimeout:       opts.ReadTimeout,
			ReadHeaderTimeout: opts.ReadHeaderTimeout,
			WriteTimeout:      opts.WriteTimeout,
			IdleTimeout:       opts.IdleTimeout,
		},
		logger: logger,
		ready:  make(chan struct{}),
	}
}

// NewFromContainer serves the editor routes with configured options.
func NewFromContainer(c *container.Container) *Server {
	return New(routes.SetupRoutes(c), OptionsFromConfig(), c.Logger)
}

// Listen binds the configured address. Calling it twice is a no-op.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln
	close(s.ready)
	return nil
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Start binds if needed and serves until Stop. A clean shutdown returns nil.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.serving {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	s.serving = true
	ln := s.listener
	s.mu.Unlock()

	s.logger.System().Info("Starting HTTP server", "address", ln.Addr().String())
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Shutdown().Info("Shutting down HTTP server...", "address", s.Addr())
	s.mu.Lock()
	idle := s.listener != nil && !s.serving
	ln := s.listener
	s.mu.Unlock()
	if idle {
		// bound but never served, so Shutdown does not know the listener
		_ = ln.Close()
	}
	return s.httpServer.Shutdown(ctx)
}
