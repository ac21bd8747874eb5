// Package server accepts WebSocket connections and runs a session for each.
//
// The server is deliberately thin. It listens on a TCP address, serves the
// upgrade endpoint over HTTP and hands every upgraded connection to a
// session.Session running on its own strand of a shared executor. All
// per-connection logic lives in the session package.
//
// # Lifecycle
//
// Start blocks until its context is cancelled or the process receives
// SIGINT or SIGTERM. Shutdown then:
//  1. Withdraws the mDNS advertisement, if any
//  2. Stops the HTTP server so no new upgrades are accepted
//  3. Closes every active session and waits for it to finish
//  4. Drains and stops the executor
//  5. Flushes the logger
//
// Steps 2 to 4 are bounded by the shutdown context.
//
// # Usage Example
//
//	cfg := config.Default()
//	cfg.Port = 8080
//
//	srv, err := server.New(cfg, handlers.PingPong)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Start(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
// Handler exposes the upgrade endpoint as a plain http.Handler for embedding
// in another mux or for tests with net/http/httptest.
package server
