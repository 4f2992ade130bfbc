package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rhuss/chatrelay/pkg/transport"
)

// Server runs the relay adapter on an http.Server. Shutdown cancels every
// in-flight stream and then waits for handlers up to the shutdown timeout.
type Server struct {
	httpServer *http.Server
	adapter    *Adapter
	opts       serverOptions
}

type serverOptions struct {
	addr              string
	maxBodySize       int64
	readHeaderTimeout time.Duration
	shutdownTimeout   time.Duration
	logger            *slog.Logger
	httpMiddleware    []mux.MiddlewareFunc
}

// ServerOption configures a Server.
type ServerOption func(*serverOptions)

// WithAddr sets the listen address (default ":8080").
func WithAddr(addr string) ServerOption {
	return func(o *serverOptions) { o.addr = addr }
}

// WithMaxBodySize limits request bodies to n bytes (default 10 MiB).
func WithMaxBodySize(n int64) ServerOption {
	return func(o *serverOptions) { o.maxBodySize = n }
}

// WithShutdownTimeout bounds graceful shutdown (default 30s).
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(o *serverOptions) { o.shutdownTimeout = d }
}

func WithLogger(l *slog.Logger) ServerOption {
	return func(o *serverOptions) { o.logger = l }
}

// WithHTTPMiddleware adds router-level middleware such as metrics and auth.
// It runs in the given order for every matched route.
func WithHTTPMiddleware(mw ...mux.MiddlewareFunc) ServerOption {
	return func(o *serverOptions) { o.httpMiddleware = append(o.httpMiddleware, mw...) }
}

// NewServer creates a server for handler. store may be nil, which disables
// the sessions API. Recovery, request ID and logging middleware are always
// applied to chat requests.
func NewServer(handler transport.ChatHandler, store transport.SessionStore, opts ...ServerOption) *Server {
	o := serverOptions{
		addr:              ":8080",
		maxBodySize:       10 << 20,
		readHeaderTimeout: 10 * time.Second,
		shutdownTimeout:   30 * time.Second,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	adapter := NewAdapter(handler, store, Config{MaxBodySize: o.maxBodySize},
		transport.Recovery(),
		transport.RequestID(),
		transport.Logging(o.logger),
	)
	adapter.Use(o.httpMiddleware...)

	s := &Server{
		adapter: adapter,
		opts:    o,
		httpServer: &http.Server{
			Addr:              o.addr,
			Handler:           adapter.Handler(),
			ReadHeaderTimeout: o.readHeaderTimeout,
		},
	}
	s.httpServer.RegisterOnShutdown(func() {
		if n := adapter.InFlight().CancelAll(); n > 0 {
			o.logger.Info("cancelled active streams", "count", n)
		}
	})
	return s
}

// Adapter returns the HTTP adapter so that /metrics, /mcp and the web UI
// can be mounted before serving.
func (s *Server) Adapter() *Adapter {
	return s.adapter
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully. It
// returns early with the error if the listener fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.opts.logger.Info("server starting", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.shutdownTimeout)
	defer cancel()

	s.opts.logger.Info("shutting down", "timeout", s.opts.shutdownTimeout)
	if err := s.Shutdown(shutdownCtx); err != nil {
		s.opts.logger.Error("shutdown failed", "error", err)
		return err
	}
	s.opts.logger.Info("server stopped")
	return nil
}

// Shutdown stops accepting connections and waits for active requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
