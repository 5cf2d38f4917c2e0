package adminserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"go.uber.org/atomic"

	"github.com/yndnr/vaultkv-go/internal/telemetry/metric"
)

// Default timeouts.
const (
	DefaultReadTimeout  = 5 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

// Stats is the body of GET /stats.
type Stats struct {
	Entries          int   `json:"entries"`
	ActiveSessions   int64 `json:"active_sessions"`
	RateLimitBuckets int   `json:"ratelimit_buckets"`
}

// Config holds admin server configuration.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the admin HTTP server.
type Server struct {
	cfg     Config
	isReady atomic.Bool
	log     *slog.Logger
	metrics *metric.Registry
	stats   func() Stats

	srv *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithMetrics exposes reg on /metrics.
func WithMetrics(reg *metric.Registry) Option {
	return func(s *Server) {
		s.metrics = reg
	}
}

// WithStats sets the source for /stats.
func WithStats(fn func() Stats) Option {
	return func(s *Server) {
		s.stats = fn
	}
}

// New creates an admin server. It reports ready until SetReady(false).
func New(cfg Config, opts ...Option) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	s := &Server{
		cfg: cfg,
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.isReady.Store(true)

	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Router returns the HTTP handler with all routes mounted.
func (s *Server) Router() http.Handler {
	mux := chi.NewRouter()

	api := mux.With(s.httpLogger, s.recoverer)
	api.Get("/livez", s.handleLivez)
	api.Get("/readyz", s.handleReadyz)
	api.Get("/stats", s.handleStats)
	api.Get("/version", s.handleVersion)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

func (s *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(s.log, next)
}

// SetReady flips the /readyz answer.
func (s *Server) SetReady(ready bool) {
	s.isReady.Store(ready)
}

// Ready reports the current readiness.
func (s *Server) Ready() bool {
	return s.isReady.Load()
}

// ListenAndServe listens on the configured address and serves until ctx
// is cancelled or Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln. A clean shutdown returns nil.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("admin server listening", "addr", ln.Addr().String())

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	})
	defer stop()

	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown marks the server not ready and stops it gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.isReady.Store(false)
	return s.srv.Shutdown(ctx)
}
