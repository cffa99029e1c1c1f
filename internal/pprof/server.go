// Package pprof runs a localhost-only net/http/pprof endpoint for live profiling.
package pprof

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
)

// Server wraps the net/http/pprof handlers on their own listener.
type Server struct {
	server   *http.Server
	listener net.Listener
	port     int
}

// NewServer creates a new pprof Server.
func NewServer() *Server {
	return &Server{}
}

// Start binds to 127.0.0.1 on port (0 picks a free one) and returns the bound port.
func (s *Server) Start(port int) (int, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("bind to %s: %w", addr, err)
	}

	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port

	// A dedicated mux keeps http.DefaultServeMux handlers off this port.
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	s.server = &http.Server{Handler: mux}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("pprof server stopped", "err", err)
		}
	}()

	slog.Info("pprof server listening", "url", s.URL())
	return s.port, nil
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	return s.port
}

// URL returns the index page address.
func (s *Server) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d/debug/pprof/", s.port)
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
