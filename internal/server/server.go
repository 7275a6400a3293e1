// Package server runs the HTTP listener for the simulator.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"

	"pkt.systems/pslog"
)

// DefaultShutdownTimeout bounds graceful shutdown.
const DefaultShutdownTimeout = 10 * time.Second

// Config configures the HTTP server.
type Config struct {
	ListenAddr string
	TLSConfig  *tls.Config
	Logger     pslog.Logger

	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
}

// Server wraps http.Server with context-driven shutdown.
type Server struct {
	srv      *http.Server
	logger   pslog.Logger
	shutdown time.Duration
}

// NewServer constructs a Server for handler.
func NewServer(cfg Config, handler http.Handler) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.LoggerFromEnv()
	}
	readHeader := cfg.ReadHeaderTimeout
	if readHeader <= 0 {
		readHeader = 10 * time.Second
	}
	shutdown := cfg.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = DefaultShutdownTimeout
	}
	return &Server{
		srv: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           handler,
			TLSConfig:         cfg.TLSConfig,
			ErrorLog:          pslog.LogLogger(logger),
			ReadHeaderTimeout: readHeader,
			IdleTimeout:       cfg.IdleTimeout,
		},
		logger:   logger,
		shutdown: shutdown,
	}
}

// Serve accepts on ln until ctx is done, then shuts down gracefully. TLS
// is used when the config carries a TLS configuration.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.srv.TLSConfig != nil {
		ln = tls.NewListener(ln, s.srv.TLSConfig)
	}
	errc := make(chan error, 1)
	go func() { errc <- s.srv.Serve(ln) }()
	s.logger.Info("listening", "addr", ln.Addr().String(), "tls", s.srv.TLSConfig != nil)

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdown)
	defer cancel()
	if err := s.srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := s.srv.Addr
	if addr == "" {
		addr = ":8443"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}
