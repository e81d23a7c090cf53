// Package api assembles ved's REST surface: routing, middleware and the
// HTTP server that runs it.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/vedmemory/ved/config"
	"github.com/vedmemory/ved/pkg/logger"
)

// HTTPServer serves the router built from Handlers.
type HTTPServer struct {
	srv     *http.Server
	handler http.Handler
	opts    config.HTTPConfig
	log     logger.Logger
}

// NewHTTPServer builds the router and an http.Server bound to
// cfg.Server.Host:cfg.Server.Port. Nothing listens until Start or Serve.
func NewHTTPServer(cfg *config.Config, log logger.Logger, h *Handlers) *HTTPServer {
	log = logger.Component(log, "api")
	handler := NewRouter(cfg, log, h)
	opts := cfg.Server.HTTP

	return &HTTPServer{
		srv: &http.Server{
			Addr:           net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
			Handler:        handler,
			ReadTimeout:    opts.ReadTimeout,
			WriteTimeout:   opts.WriteTimeout,
			IdleTimeout:    opts.IdleTimeout,
			MaxHeaderBytes: opts.MaxHeaderBytes,
		},
		handler: handler,
		opts:    opts,
		log:     log,
	}
}

// Handler returns the root handler.
func (s *HTTPServer) Handler() http.Handler { return s.handler }

// Addr is the configured listen address.
func (s *HTTPServer) Addr() string { return s.srv.Addr }

// Start listens on Addr and serves until Shutdown. A busy port fails
// immediately.
func (s *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("api: listen %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown, which makes it return nil.
func (s *HTTPServer) Serve(ln net.Listener) error {
	s.log.Info("HTTP server listening",
		"addr", ln.Addr().String(),
		"request_timeout", s.opts.RequestTimeout,
	)
	err := s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	s.log.Error("HTTP server stopped unexpectedly", "error", err)
	return fmt.Errorf("api: serve: %w", err)
}

// Shutdown drains in-flight requests until ctx expires.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	s.log.Info("HTTP server stopped")
	return nil
}
