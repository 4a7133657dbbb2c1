package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/kamusis/greyhound/internal/logger"
)

// Config holds listener settings.
type Config struct {
	Listen          string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig listens on localhost:8081.
func DefaultConfig() Config {
	return Config{
		Listen:          "127.0.0.1:8081",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Server is an http.Server bound to one handler.
type Server struct {
	cfg    Config
	http   *http.Server
	logger logger.Logger
}

// New returns a Server for h.
func New(cfg Config, h http.Handler, log logger.Logger) *Server {
	if log == nil {
		log = logger.NopLogger
	}
	return &Server{
		cfg:    cfg,
		logger: log,
		http: &http.Server{
			Addr:         cfg.Listen,
			Handler:      h,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully,
// letting in-flight requests finish.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Infof("listening on http://%s", ln.Addr())

	errc := make(chan error, 1)
	go func() { errc <- s.http.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Infof("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}
