package storage

import (
	"errors"
	"fmt"

	"github.com/yndnr/vaultkv-go/pkg/integrity"
)

// recordVersion prefixes every encoded record value.
const recordVersion byte = 1

// ErrCorruptRecord is returned when an encoded record cannot be decoded.
var ErrCorruptRecord = errors.New("storage: corrupt record")

// Record is one persisted vault entry: the value and the digest it was
// stamped with when written.
type Record struct {
	Key    string
	Value  []byte
	Digest integrity.Digest
}

// EncodeRecordValue lays out a record as version(1) | digest(32) | value.
// The key is stored separately by the engine.
func EncodeRecordValue(r Record) []byte {
	buf := make([]byte, 1+integrity.Size+len(r.Value))
	buf[0] = recordVersion
	copy(buf[1:], r.Digest[:])
	copy(buf[1+integrity.Size:], r.Value)
	return buf
}

// DecodeRecordValue is the inverse of EncodeRecordValue. The returned
// record does not alias b.
func DecodeRecordValue(key string, b []byte) (Record, error) {
	if len(b) < 1+integrity.Size {
		return Record{}, fmt.Errorf("%w: %d bytes", ErrCorruptRecord, len(b))
	}
	if b[0] != recordVersion {
		return Record{}, fmt.Errorf("%w: unknown version %d", ErrCorruptRecord, b[0])
	}
	r := Record{Key: key}
	copy(r.Digest[:], b[1:1+integrity.Size])
	r.Value = append([]byte{}, b[1+integrity.Size:]...)
	return r, nil
}
