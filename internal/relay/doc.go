// Package relay implements the one-way console channel from a sandboxed
// preview to the host.
//
// Wire message (sandbox → host):
//
//	{"type": "console", "method": "log" | "warn" | "error", "args": ["..."]}
//
// The relay accepts payloads from any instance and trusts only the type tag.
// Payloads that are not valid JSON, carry another type, name an unknown
// method or have non-string args are dropped silently. One consumer
// goroutine processes the inbound queue in FIFO order, appends a line to the
// Panel and fans the event out to subscribers. There is no acknowledgement
// and no backpressure toward the sandbox.
//
// Example Usage:
//
//	r := relay.New(relay.Options{MaxLines: 500})
//	defer r.Close()
//	host := sandbox.NewHost(sandbox.DefaultConfig(), r.Sink, logger)
//	events, cancel := r.Subscribe(64)
//	defer cancel()
package relay
