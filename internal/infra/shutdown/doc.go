// Package shutdown coordinates graceful process shutdown.
//
// Components register hooks as they start; on SIGINT, SIGTERM or when the
// wait context ends, the hooks run in reverse registration order under a
// shared deadline:
//
//	h := shutdown.NewHandler(15*time.Second, shutdown.WithLogger(log))
//	h.OnShutdown("listener", srv.Shutdown)
//	err := h.Wait(ctx)
package shutdown
