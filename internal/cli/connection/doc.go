// Package connection holds the vaultkv-cli connection to a server.
//
// The Manager dials lazily on first use and keeps the connection open, so
// a shell session runs every command over one TLS session.
package connection
