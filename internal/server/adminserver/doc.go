// Package adminserver serves the local HTTP admin endpoint of vaultkv-server.
//
// Routes:
//
//	GET /livez    process is up
//	GET /readyz   503 once the server starts draining
//	GET /metrics  Prometheus exposition
//	GET /stats    entry, session and rate-limit bucket counts
//	GET /version  build information
//
// The endpoint has no authentication and should only listen on loopback.
package adminserver
