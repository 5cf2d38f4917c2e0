// Package cmap provides a concurrent map implementation for vaultkv.
//
// The map is sharded: keys are distributed over a power-of-two number of
// shards by a seeded murmur3 hash, each shard guarded by its own RWMutex.
//
//   - Get/Has take the shard read lock
//   - Set/Delete/Pop take the shard write lock
//   - Compute, GetOrCreate and DeleteIf run their callback under the write
//     lock, which gives per-key mutual exclusion for read-modify-write
//
// Usage:
//
//	m := cmap.New[*entry]()
//	m.Set("key", e)
//	v, ok := m.Get("key")
package cmap
