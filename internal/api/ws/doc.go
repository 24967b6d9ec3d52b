// Package ws streams the playground to the host page over a WebSocket.
//
// Each connection subscribes to the console relay and to playground
// lifecycle events, and accepts edits and run commands. A single write pump
// owns the connection's writes.
//
// Message Types (Client → Server):
//   - edit: Replace one pane ({pane, text})
//   - replace: Replace all buffers ({buffers, run})
//   - run: Rebuild now
//   - auto_run: Toggle debounced rebuilds ({enabled})
//   - ping: Keep-alive ping
//
// Message Types (Server → Client):
//   - system: Connection accepted, with the client ID and status
//   - console: One console line ({event})
//   - saved, save_failed, rebuilt: Playground lifecycle events
//   - pong: Reply to ping
//   - error: Rejected message; the connection stays open
//
// Example Usage:
//
//	handler := ws.NewHandler(pg, ws.Options{Metrics: metrics, Logger: logger})
//	router.GET("/ws", handler.HandleConnection)
package ws
