// Package storage persists vault records.
//
// BadgerEngine is a write-through backend: the vault writes each record
// to it inside the key's critical section, and scans it back at startup.
// The snapshot subpackage holds the periodic snapshot files used by the
// memory engine.
//
// On disk a record value is version(1) | digest(32) | value, keyed by
// "kv/" + key.
package storage
