// Package server wires CodeLive together.
//
// This package orchestrates all components:
//   - Session storage (SQLite or memory) behind a write breaker
//   - Console relay and sandboxed execution host
//   - The playground with its debounced rebuild pipeline
//   - HTTP routing with Gin framework
//   - Middleware stack (request IDs, logging, metrics, CORS, rate limiting)
//   - WebSocket streaming and the Prometheus endpoint
//
// Server Lifecycle:
//  1. Load configuration from defaults, environment, file and flags
//  2. Initialize logger and metrics
//  3. Open storage and restore the saved session
//  4. Setup HTTP routes and middleware
//  5. Serve until the context is cancelled
//  6. Shut down gracefully and close resources
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Close()
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
