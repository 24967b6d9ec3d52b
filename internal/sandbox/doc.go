/*
Package sandbox executes preview documents in isolated JavaScript runtimes.

# Overview

Each rendered document gets its own Instance:

  - a fresh goja runtime, never reused across renders
  - a DOM parsed from the document with goquery
  - one event-loop goroutine that owns the runtime and the DOM
  - timers, listeners and animation frames scoped to the instance

# Isolation

The instance shares no Go objects with the host. Its only way out is
window.parent.postMessage: the message is serialized inside the runtime with
JSON.stringify and the resulting bytes are handed to the instance's sink.
require, process, module and exports are removed from the global scope.

# Failure Handling

Every job on the loop (script evaluation, timer callback, event dispatch) runs
under a watchdog that interrupts the runtime after Config.Timeout. A runaway
script therefore stalls only its own instance. Uncaught exceptions, syntax
errors and timeouts are routed to window.onerror when the page defines one.

# Usage Example

	rel := relay.New(relay.Options{})
	host := sandbox.NewHost(sandbox.DefaultConfig(), rel.Sink, logger)
	defer host.Close()

	result, err := host.Render(ctx, preview.Assemble(set))
	if err != nil {
		return err
	}
	html, _ := host.Snapshot(ctx)

Render closes the previous instance before starting the next one: its
runtime is interrupted, its timers stopped and its loop exited.
*/
package sandbox
