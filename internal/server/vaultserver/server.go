package vaultserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/yndnr/vaultkv-go/internal/core/ratelimit"
	"github.com/yndnr/vaultkv-go/internal/core/vault"
	"github.com/yndnr/vaultkv-go/internal/protocol"
	"github.com/yndnr/vaultkv-go/internal/telemetry/metric"
	"github.com/yndnr/vaultkv-go/pkg/cmap"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("vaultserver: server closed")

// Config holds the server configuration.
type Config struct {
	// Addr is the TCP listen address used by ListenAndServe.
	Addr string
	// TLSConfig is required. It is shared by every connection.
	TLSConfig *tls.Config
	// HandshakeTimeout bounds the TLS handshake (default: 10s).
	HandshakeTimeout time.Duration
	// ReadTimeout bounds reading one frame once its first byte arrived
	// (default: 30s). Helps prevent slowloris attacks.
	ReadTimeout time.Duration
	// WriteTimeout bounds writing one response (default: 30s).
	WriteTimeout time.Duration
	// IdleTimeout is how long a session may wait for the next request
	// (default: 5m).
	IdleTimeout time.Duration
	// Limits bounds incoming frames.
	Limits protocol.Limits
}

// DefaultConfig returns the default configuration without TLS material.
func DefaultConfig() Config {
	return Config{
		Addr:             ":7443",
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     30 * time.Second,
		IdleTimeout:      5 * time.Minute,
		Limits:           protocol.DefaultLimits(),
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = def.IdleTimeout
	}
}

// Server accepts TLS connections and runs a session for each.
type Server struct {
	cfg     Config
	store   *vault.Store
	limiter *ratelimit.Limiter
	metrics *metric.Registry
	logger  *slog.Logger

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	closing   atomic.Bool
	wg        sync.WaitGroup

	sessions  *cmap.Map[*session]
	clientIDs *cmap.Map[string] // client id -> session id
	active    atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithLimiter sets the rate limiter. Without one every request is admitted.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(s *Server) {
		s.limiter = l
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metric.Registry) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// New creates a server for store.
func New(cfg Config, store *vault.Store, opts ...Option) (*Server, error) {
	if cfg.TLSConfig == nil {
		return nil, errors.New("vaultserver: TLS config is required")
	}
	if store == nil {
		return nil, errors.New("vaultserver: store is required")
	}
	cfg.applyDefaults()

	s := &Server{
		cfg:       cfg,
		store:     store,
		logger:    slog.Default(),
		listeners: make(map[net.Listener]struct{}),
		sessions:  cmap.New[*session](),
		clientIDs: cmap.New[string](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ListenAndServe listens on cfg.Addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("vaultserver: listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts plain TCP connections on ln and wraps each in TLS.
// It returns ErrServerClosed after Shutdown, or when ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if !s.trackListener(ln) {
		ln.Close()
		return ErrServerClosed
	}
	defer s.untrackListener(ln)

	stop := context.AfterFunc(ctx, func() {
		ln.Close()
	})
	defer stop()

	s.logger.Info("vault server listening", "address", ln.Addr().String())

	var backoff time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.closing.Load() || ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ErrServerClosed
			}
			if isTemporary(err) {
				if backoff == 0 {
					backoff = 5 * time.Millisecond
				} else {
					backoff *= 2
				}
				if backoff > time.Second {
					backoff = time.Second
				}
				s.logger.Warn("accept error, retrying",
					"error", err,
					"backoff", backoff)
				time.Sleep(backoff)
				continue
			}
			return fmt.Errorf("vaultserver: accept: %w", err)
		}
		backoff = 0

		sess := newSession(c, s.logger)
		if !s.register(sess) {
			c.Close()
			return ErrServerClosed
		}
		go func() {
			defer s.wg.Done()
			s.serveSession(ctx, sess)
		}()
	}
}

// Shutdown stops accepting, closes every live session and waits for the
// session goroutines to exit or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing.Store(true)
	var firstErr error
	for ln := range s.listeners {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) && firstErr == nil {
			firstErr = err
		}
	}
	s.mu.Unlock()

	s.sessions.Range(func(_ string, sess *session) bool {
		sess.close()
		return true
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return firstErr
}

// ActiveSessions returns the number of sessions past the handshake.
func (s *Server) ActiveSessions() int64 {
	return s.active.Load()
}

// Draining reports whether Shutdown has been called.
func (s *Server) Draining() bool {
	return s.closing.Load()
}

func (s *Server) trackListener(ln net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return false
	}
	s.listeners[ln] = struct{}{}
	return true
}

func (s *Server) untrackListener(ln net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, ln)
}

// register adds sess to the live set. The check and the WaitGroup Add
// share s.mu with Shutdown so no session starts after Shutdown waits.
func (s *Server) register(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return false
	}
	s.wg.Add(1)
	s.sessions.Set(sess.id, sess)
	return true
}

func (s *Server) unregister(sess *session) {
	s.sessions.Delete(sess.id)
	if sess.clientID != "" {
		s.clientIDs.DeleteIf(sess.clientID, func(owner string) bool {
			return owner == sess.id
		})
	}
}

func isTemporary(err error) bool {
	var te interface{ Temporary() bool }
	return errors.As(err, &te) && te.Temporary()
}
