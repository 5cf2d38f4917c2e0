// Package client is a Go client for vaultkv-server.
//
// A Client owns one TLS connection and sends one request at a time.
// Non-OK statuses come back as the domain errors they stand for, so
// callers can test them with errors.Is:
//
//	item, err := c.Get(ctx, "k")
//	if errors.Is(err, domain.ErrKeyNotFound) { ... }
//
// Get re-verifies the digest the server returned before handing the value
// back; a mismatch is reported as domain.ErrIntegrityViolation.
package client
