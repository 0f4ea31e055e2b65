// Package shutdown coordinates graceful process termination.
//
// Components register named hooks as they start; on SIGINT, SIGTERM or an
// explicit Trigger the hooks run once, newest first, under a shared
// deadline:
//
//	h := shutdown.NewHandler(15*time.Second, log)
//	h.OnShutdown("store", repo.Close)
//	h.OnShutdown("http", srv.Shutdown)
//	err := h.Wait(ctx)
package shutdown
