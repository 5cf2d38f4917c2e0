// Package vaultserver serves the vault protocol over TLS.
//
// The Server accepts TCP connections, performs the TLS handshake under a
// timeout and runs one session goroutine per connection. A session moves
// through Handshaking, Ready and Processing until it is Closed by the peer,
// an idle timeout, a malformed frame or Shutdown.
//
// Data requests (PUT, GET, DELETE) pass the rate limiter before reaching
// the store. PING, HELLO and QUIT are never limited.
package vaultserver
