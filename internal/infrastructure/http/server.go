// Package http runs the echo server with graceful shutdown.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Server wraps an echo instance with a bound listener.
type Server struct {
	e               *echo.Echo
	ln              net.Listener
	shutdownTimeout time.Duration
	log             zerolog.Logger
}

// Listen binds addr. Binding happens only after every startup check has
// passed, so a failed start never leaves a half-initialised listener.
func Listen(e *echo.Echo, addr string, shutdownTimeout time.Duration, log zerolog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	e.Listener = ln
	return &Server{e: e, ln: ln, shutdownTimeout: shutdownTimeout, log: log}, nil
}

// Addr is the bound address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Run serves until ctx is cancelled, then drains in-flight requests for up to
// the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.ln.Addr().String()).Msg("http server listening")
		if err := s.e.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
