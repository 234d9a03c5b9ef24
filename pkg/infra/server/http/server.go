// Package http provides the gin based HTTP server used by megaservice.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	errno "github.com/kart-io/megaservice/pkg/errors"
	options "github.com/kart-io/megaservice/pkg/options/server/http"
	"github.com/kart-io/megaservice/pkg/utils/response"
)

// Server is the HTTP server. It implements server.Runnable.
type Server struct {
	opts   *options.Options
	engine *gin.Engine

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	errCh    chan error
}

// NewServer creates a gin engine in release mode with the given middleware
// and a JSON 404 handler.
func NewServer(opts *options.Options, middleware ...gin.HandlerFunc) *Server {
	if opts == nil {
		opts = options.NewOptions()
	}

	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.ContextWithFallback = true
	engine.Use(middleware...)
	engine.NoRoute(func(c *gin.Context) {
		response.Fail(c, errno.ErrRouteNotFound)
	})

	return &Server{opts: opts, engine: engine, errCh: make(chan error, 1)}
}

// Name returns the server name.
func (s *Server) Name() string {
	return "http[gin]"
}

// Engine returns the underlying gin.Engine for route registration.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Addr returns the bound address once the server is started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.opts.Addr
}

// Errors returns a channel that receives a fatal serve error.
func (s *Server) Errors() <-chan error {
	return s.errCh
}

// Start binds the listen address and serves in the background. Bind errors
// are returned synchronously.
func (s *Server) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.New("http server already started")
	}

	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:      s.engine,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
	}

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("HTTP server stopped unexpectedly", "error", err)
			s.errCh <- err
		}
	}()
	logger.Infow("HTTP server listening", "addr", ln.Addr().String())
	return nil
}

// Stop gracefully shuts the server down, waiting for in-flight requests
// (including open streams) until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
