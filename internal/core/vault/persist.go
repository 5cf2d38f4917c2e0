package vault

import (
	"bytes"
	"context"

	"github.com/yndnr/vaultkv-go/internal/core/domain"
	"github.com/yndnr/vaultkv-go/internal/storage"
)

// Snapshot returns a copy of every entry. Each record is consistent on its
// own; the set as a whole is not a point-in-time view under concurrent writes.
func (s *Store) Snapshot() []storage.Record {
	records := make([]storage.Record, 0, s.entries.Count())
	s.entries.Range(func(key string, e *entry) bool {
		records = append(records, storage.Record{
			Key:    key,
			Value:  bytes.Clone(nonNil(e.value)),
			Digest: e.digest,
		})
		return true
	})
	return records
}

// Restore loads records into memory without writing them to the backend.
// Records whose digest does not match their value, or whose key or value
// violates the configured bounds, are skipped.
func (s *Store) Restore(ctx context.Context, records []storage.Record) (loaded, rejected int) {
	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		if s.restoreOne(rec) {
			loaded++
		} else {
			rejected++
		}
	}
	return loaded, rejected
}

// LoadFrom restores every record held by b. Rejected records are deleted
// from b once the scan completes.
func (s *Store) LoadFrom(ctx context.Context, b Backend) (loaded, rejected int, err error) {
	var purge []string
	err = b.Load(ctx, func(rec storage.Record) error {
		if s.restoreOne(rec) {
			loaded++
		} else {
			rejected++
			purge = append(purge, rec.Key)
		}
		return ctx.Err()
	})
	if err != nil {
		return loaded, rejected, domain.ErrStorage.WithCause(err)
	}

	for _, key := range purge {
		if err := b.Delete(ctx, key); err != nil {
			s.logger.Error("failed to purge rejected record",
				"key", key,
				"error", err)
		}
	}
	return loaded, rejected, nil
}

func (s *Store) restoreOne(rec storage.Record) bool {
	if err := s.validate(rec.Key, rec.Value); err != nil {
		s.logger.Warn("skipping invalid record",
			"key", rec.Key,
			"error", err)
		return false
	}
	if !s.codec.Verify(rec.Value, rec.Digest) {
		s.logger.Warn("skipping record with bad digest", "key", rec.Key)
		if s.onViolation != nil {
			s.onViolation(rec.Key)
		}
		return false
	}

	buf := make([]byte, len(rec.Value))
	copy(buf, rec.Value)
	s.entries.Set(rec.Key, &entry{value: buf, digest: rec.Digest})
	return true
}
