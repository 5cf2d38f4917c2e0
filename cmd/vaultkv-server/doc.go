// Package main provides the entry point for vaultkv-server.
//
// The server accepts TLS connections and serves PUT, GET and DELETE
// requests against an integrity-checked key-value store. Optional parts:
//
//   - badger or snapshot persistence
//   - per-client rate limiting
//   - a local HTTP admin endpoint with health checks and metrics
//
// Usage:
//
//	vaultkv-server [flags] [port]
//	vaultkv-server --config /etc/vaultkv/server.yaml
//	vaultkv-server --cert cert.pem --key key.pem 7443
//
// Configuration is read from defaults, then the config file, then
// VAULTKV_* environment variables, then flags.
package main
