package server

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Server owns the bench's *http.Server lifecycle: Run blocks serving, and
// Shutdown drains in-flight requests.
type Server struct {
	httpServer *http.Server
}

const (
	maxHeaderBytes    = 1 << 20 // 1 MB
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 60 * time.Second
)

// No WriteTimeout: /ws holds a long-lived upgraded connection, and scenario
// steps block their request for the length of the step.

// Run starts listening on the given port ("8080" and ":8080" both accepted)
// with the provided handler.
func (s *Server) Run(port string, handler http.Handler) error {
	addr := port
	if addr != "" && !strings.HasPrefix(addr, ":") {
		addr = ":" + addr
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		MaxHeaderBytes:    maxHeaderBytes,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, allowing in-flight requests to
// complete. A Server that never ran shuts down trivially.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
