// Package tlsroots provides TLS certificate management for vaultkv.
//
//   - roots.go: trust pools for clients (system roots plus custom CAs)
//   - watcher.go: the server certificate, with optional hot reload
//
// The server certificate is loaded once at startup and shared read-only
// through tls.Config.GetCertificate; a reload swaps the pointer.
package tlsroots
