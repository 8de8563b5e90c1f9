// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
)

// ServerOptions holds the HTTP server timeouts. Zero values use defaults.
type ServerOptions struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
)

// Server serves the account API.
type Server struct {
	addr       string
	handler    http.Handler
	opts       ServerOptions
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a server for handler on addr (":8080", or ":0" for an
// ephemeral port).
func NewServer(addr string, handler http.Handler, opts ServerOptions) *Server {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	return &Server{addr: addr, handler: handler, opts: opts}
}

// Start begins serving in the background. The returned channel receives
// a serve error, if any, and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.opts.ReadTimeout,
		ReadTimeout:       s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts the server down, waiting for in-flight requests
// until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_api_server").Wrap(err)
		}
	}

	slog.Info("api server stopped")
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
