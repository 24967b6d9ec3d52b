// Package main is the entry point for the CodeLive server.
//
// CodeLive is a live front-end playground: three editor panes (HTML, CSS,
// JavaScript) are assembled into one document, executed in a sandboxed
// host, and rendered next to a console panel that mirrors the preview's
// console output.
//
// Architecture:
//
//	Browser (host page) ⇄ REST + WebSocket → Playground → Assembler
//	                                                     → Sandbox host → Console relay
//	                                                     → Session store (SQLite)
//
// Configuration:
//   - Defaults for development
//   - Environment variables (12-factor)
//   - Optional TOML file (-config)
//   - CLI flags (override everything)
//
// Usage:
//
//	# Production mode
//	./server -port 8000 -db /var/lib/codelive/codelive.db
//
//	# Development mode (console logs, debug level, throwaway storage)
//	./server -dev -driver memory
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
