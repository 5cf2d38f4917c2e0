// Package snapshot writes and reads full dumps of the vault.
//
// File layout:
//
//	snapshot-<timestamp>-<sequence>.snap
//	[magic:8 "VKVSNAP1"]
//	[HeaderLen:4][HeaderJSON:HeaderLen]
//	[DataLen:4][Data:DataLen]   (JSON records, sealed when a passphrase is set)
//	[checksum:32 SHA-256 of all bytes above]
//
// A sealed data block is encrypted with a key derived from the passphrase
// by Argon2id, using a salt stored in the header. The header is the AEAD
// additional data, so it cannot be altered without failing decryption.
//
// Load picks the newest file whose checksum verifies and falls back to
// older ones otherwise.
package snapshot
