// Package utils holds request validation and content hashing helpers shared
// by the HTTP and WebSocket transports.
package utils
