// Package vault implements the integrity-checked key-value store.
package vault

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/yndnr/vaultkv-go/internal/core/domain"
	"github.com/yndnr/vaultkv-go/internal/storage"
	"github.com/yndnr/vaultkv-go/pkg/cmap"
	"github.com/yndnr/vaultkv-go/pkg/integrity"
)

// Backend persists entries. Put and Delete are called inside the key's
// critical section, so a backend sees writes for one key in the same order
// as the in-memory map.
type Backend interface {
	Put(ctx context.Context, rec storage.Record) error
	Delete(ctx context.Context, key string) error
	Load(ctx context.Context, fn func(rec storage.Record) error) error
}

// Config bounds the shape of stored data.
type Config struct {
	// MaxKeyLen is the maximum key length in bytes.
	MaxKeyLen int
	// MaxValueSize is the maximum value size in bytes.
	MaxValueSize int
	// Shards is the lock shard count (power of two).
	Shards int
}

// DefaultConfig returns the default store bounds.
func DefaultConfig() Config {
	return Config{
		MaxKeyLen:    domain.DefaultMaxKeyLen,
		MaxValueSize: domain.DefaultMaxValueSize,
		Shards:       cmap.DefaultShardCount,
	}
}

// Item is a value returned by Get together with its verified digest.
// Value is a private copy owned by the caller.
type Item struct {
	Value  []byte
	Digest integrity.Digest
}

// entry is immutable once stored; replacing a key swaps the pointer.
type entry struct {
	value  []byte
	digest integrity.Digest
}

// Store is a concurrency-safe key-value store with per-entry digests.
type Store struct {
	cfg         Config
	codec       *integrity.Codec
	entries     *cmap.Map[*entry]
	backend     Backend
	logger      *slog.Logger
	onViolation func(key string)
}

// Option configures a Store.
type Option func(*Store)

// WithCodec sets the integrity codec (default SHA-256).
func WithCodec(c *integrity.Codec) Option {
	return func(s *Store) {
		s.codec = c
	}
}

// WithBackend enables write-through persistence.
func WithBackend(b Backend) Option {
	return func(s *Store) {
		s.backend = b
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithViolationHandler registers a callback invoked once per detected
// integrity violation, after the entry has been quarantined.
func WithViolationHandler(fn func(key string)) Option {
	return func(s *Store) {
		s.onViolation = fn
	}
}

// New creates an empty store.
func New(cfg Config, opts ...Option) *Store {
	def := DefaultConfig()
	if cfg.MaxKeyLen <= 0 {
		cfg.MaxKeyLen = def.MaxKeyLen
	}
	if cfg.MaxValueSize <= 0 {
		cfg.MaxValueSize = def.MaxValueSize
	}
	if cfg.Shards <= 0 {
		cfg.Shards = def.Shards
	}

	s := &Store{
		cfg:     cfg,
		entries: cmap.NewWithShards[*entry](cfg.Shards),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.codec == nil {
		s.codec = integrity.Default()
	}
	return s
}

// Put inserts or replaces the value for key. The last writer wins.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := s.validate(key, value); err != nil {
		return err
	}
	e := s.newEntry(value)
	return s.write(ctx, key, e)
}

// PutVerified is Put for a value that arrived with a digest computed by
// the sender. A digest that does not match the value is rejected with
// ErrDigestMismatch and nothing is stored.
func (s *Store) PutVerified(ctx context.Context, key string, value []byte, digest integrity.Digest) error {
	if err := s.validate(key, value); err != nil {
		return err
	}
	e := s.newEntry(value)
	if e.digest != digest {
		return domain.ErrDigestMismatch.WithDetails("value does not match supplied digest")
	}
	return s.write(ctx, key, e)
}

// Get returns a verified copy of the value stored for key.
//
// found is false for an absent key. A stored entry that fails
// re-verification is quarantined and ErrIntegrityViolation is returned;
// it is never served again.
func (s *Store) Get(ctx context.Context, key string) (Item, bool, error) {
	if err := domain.ValidateKey(key, s.cfg.MaxKeyLen); err != nil {
		return Item{}, false, err
	}

	e, ok := s.entries.Get(key)
	if !ok {
		return Item{}, false, nil
	}

	// Hashing runs outside the shard lock; e is immutable.
	if !s.codec.Verify(e.value, e.digest) {
		s.quarantine(ctx, key, e)
		return Item{}, false, domain.ErrIntegrityViolation.WithDetails("stored value failed verification")
	}

	return Item{Value: bytes.Clone(nonNil(e.value)), Digest: e.digest}, true, nil
}

// Delete removes key and reports whether it was present.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if err := domain.ValidateKey(key, s.cfg.MaxKeyLen); err != nil {
		return false, err
	}

	if s.backend == nil {
		_, found := s.entries.Pop(key)
		return found, nil
	}

	found := false
	_, err := s.entries.Compute(key, func(cur *entry, exists bool) (*entry, bool, error) {
		if !exists {
			return nil, false, nil
		}
		if err := s.backend.Delete(ctx, key); err != nil {
			return cur, true, domain.ErrStorage.WithCause(err)
		}
		found = true
		return nil, false, nil
	})
	return found, err
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	return s.entries.Count()
}

// Codec returns the integrity codec in use.
func (s *Store) Codec() *integrity.Codec {
	return s.codec
}

func (s *Store) validate(key string, value []byte) error {
	if err := domain.ValidateKey(key, s.cfg.MaxKeyLen); err != nil {
		return err
	}
	return domain.ValidateValue(value, s.cfg.MaxValueSize)
}

// newEntry copies value so the caller's buffer is never aliased, then
// stamps it. Hashing happens before any lock is taken.
func (s *Store) newEntry(value []byte) *entry {
	buf := make([]byte, len(value))
	copy(buf, value)
	return &entry{value: buf, digest: s.codec.Stamp(buf)}
}

func (s *Store) write(ctx context.Context, key string, e *entry) error {
	if s.backend == nil {
		s.entries.Set(key, e)
		return nil
	}

	_, err := s.entries.Compute(key, func(cur *entry, exists bool) (*entry, bool, error) {
		rec := storage.Record{Key: key, Value: e.value, Digest: e.digest}
		if err := s.backend.Put(ctx, rec); err != nil {
			return cur, exists, domain.ErrStorage.WithCause(err)
		}
		return e, true, nil
	})
	return err
}

// quarantine removes bad from key, unless a newer write already replaced it.
func (s *Store) quarantine(ctx context.Context, key string, bad *entry) {
	removed := false
	_, _ = s.entries.Compute(key, func(cur *entry, exists bool) (*entry, bool, error) {
		if !exists || cur != bad {
			return cur, exists, nil
		}
		if s.backend != nil {
			if err := s.backend.Delete(ctx, key); err != nil {
				// memory copy still goes; a reload re-verifies and drops it again
				s.logger.Error("failed to delete quarantined entry from backend",
					"key", key,
					"error", err)
			}
		}
		removed = true
		return nil, false, nil
	})

	s.logger.Warn("integrity violation detected",
		"key", key,
		"quarantined", removed)

	if s.onViolation != nil {
		s.onViolation(key)
	}
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
