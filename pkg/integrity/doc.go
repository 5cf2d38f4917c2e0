// Package integrity computes and verifies value digests.
//
// A Codec binds a fixed-size 32-byte digest to the exact bytes of a value.
// The vault stamps every value on write and re-verifies on every read, so a
// stored value whose digest no longer matches is reported as corrupt
// instead of being served.
//
// Supported algorithms:
//
//   - sha256 (default)
//   - blake2b-256
package integrity
