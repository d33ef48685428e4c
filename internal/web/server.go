package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// =============================================================================
// HTTP Server
// Server lifecycle management wrapping the Router
// =============================================================================

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response
	WriteTimeout time.Duration

	// IdleTimeout is the maximum time to wait for the next request when keep-alives are enabled
	IdleTimeout time.Duration

	// MaxHeaderBytes controls the maximum number of bytes the server will read parsing the request header
	MaxHeaderBytes int
}

// DefaultServerConfig returns sensible defaults for production use
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}
}

// Server wraps an HTTP server around a handler, normally the Router
type Server struct {
	addr       string
	config     ServerConfig
	handler    http.Handler
	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates a new Server with default configuration
func NewServer(addr string, handler http.Handler) *Server {
	return NewServerWithConfig(addr, DefaultServerConfig(), handler)
}

// NewServerWithConfig creates a new Server with custom configuration
func NewServerWithConfig(addr string, config ServerConfig, handler http.Handler) *Server {
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		addr:    addr,
		config:  config,
		handler: handler,
	}
	s.httpServer = &http.Server{
		Addr:           addr,
		Handler:        handler,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s
}

// WithHandler replaces the handler (useful for dependency injection in tests)
func (s *Server) WithHandler(handler http.Handler) *Server {
	s.handler = handler
	s.httpServer.Handler = handler
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Listen binds the server address. Start calls it when it has not been
// called yet.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// Start serves requests and blocks until the server is shut down.
// It returns nil after a graceful Shutdown.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	err := s.httpServer.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server without interrupting active connections
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the bound address once listening, otherwise the configured one
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
