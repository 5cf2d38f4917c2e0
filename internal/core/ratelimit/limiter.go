// Package ratelimit admits or denies requests per client identity using
// token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"github.com/yndnr/vaultkv-go/pkg/cmap"
)

// Config holds the bucket parameters shared by every identity.
type Config struct {
	// Capacity is the bucket size C: the largest burst admitted at once.
	Capacity int
	// RefillRate is R, tokens added per second.
	RefillRate float64
	// IdleExpiry is how long a bucket may go unused before it is evicted.
	// It is raised to C/R if set lower, so eviction never hands out a
	// fresher bucket than the one dropped.
	IdleExpiry time.Duration
	// SweepInterval is the period of the eviction sweep.
	SweepInterval time.Duration
}

// DefaultConfig returns the default limiter parameters.
func DefaultConfig() Config {
	return Config{
		Capacity:      20,
		RefillRate:    10,
		IdleExpiry:    10 * time.Minute,
		SweepInterval: time.Minute,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("ratelimit: capacity must be >= 1, got %d", c.Capacity)
	}
	if c.RefillRate <= 0 {
		return fmt.Errorf("ratelimit: refill rate must be > 0, got %v", c.RefillRate)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("ratelimit: sweep interval must be > 0, got %v", c.SweepInterval)
	}
	return nil
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per identity. It is safe for concurrent use.
// A nil *Limiter admits everything.
type Limiter struct {
	cfg     Config
	expiry  time.Duration
	clock   clock.Clock
	buckets *cmap.Map[*bucket]
	logger  *slog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) {
		l.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// New creates a Limiter.
func New(cfg Config, opts ...Option) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Limiter{
		cfg:     cfg,
		clock:   clock.New(),
		buckets: cmap.New[*bucket](),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	fill := time.Duration(float64(cfg.Capacity) / cfg.RefillRate * float64(time.Second))
	l.expiry = max(cfg.IdleExpiry, fill)
	return l, nil
}

// Allow consumes one token from id's bucket and reports whether the
// request is admitted. A first request from id starts from a full bucket.
// A denied request consumes nothing.
func (l *Limiter) Allow(id string) bool {
	if l == nil {
		return true
	}

	now := l.clock.Now()
	allowed := false

	// The refill-and-take runs under the shard write lock, so it is
	// atomic with concurrent Allow calls for id and with eviction.
	_, _ = l.buckets.Compute(id, func(b *bucket, exists bool) (*bucket, bool, error) {
		if !exists {
			b = &bucket{lim: rate.NewLimiter(rate.Limit(l.cfg.RefillRate), l.cfg.Capacity)}
		}
		allowed = b.lim.AllowN(now, 1)
		b.lastSeen = now
		return b, true, nil
	})
	return allowed
}

// Tokens returns the tokens currently available to id. An unknown id has a
// full bucket.
func (l *Limiter) Tokens(id string) float64 {
	if l == nil {
		return 0
	}
	b, ok := l.buckets.Get(id)
	if !ok {
		return float64(l.cfg.Capacity)
	}
	return b.lim.TokensAt(l.clock.Now())
}

// Buckets returns the number of tracked identities.
func (l *Limiter) Buckets() int {
	if l == nil {
		return 0
	}
	return l.buckets.Count()
}

// Expiry returns the effective idle expiry.
func (l *Limiter) Expiry() time.Duration {
	return l.expiry
}

// Sweep evicts buckets idle for longer than the expiry and returns how many
// were removed.
func (l *Limiter) Sweep() int {
	if l == nil {
		return 0
	}
	cutoff := l.clock.Now().Add(-l.expiry)
	return l.buckets.DeleteWhere(func(_ string, b *bucket) bool {
		return b.lastSeen.Before(cutoff)
	})
}

// Run sweeps idle buckets every SweepInterval until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	if l == nil {
		return
	}

	ticker := l.clock.Ticker(l.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				l.logger.Debug("evicted idle rate limit buckets",
					"evicted", n,
					"remaining", l.buckets.Count())
			}
		}
	}
}
