// Package client is a Go client for the CodeLive REST API, used by the
// playctl command.
//
// Requests go through resty on top of a retrying transport, and a circuit
// breaker stops hammering a server that keeps failing.
//
// Example Usage:
//
//	c := client.New(client.DefaultBaseURL, client.Options{MaxRetries: 2})
//	if err := c.PutBuffers(ctx, buffer.Set{Script: "console.log(1)"}, true); err != nil {
//	    return err
//	}
//	lines, err := c.Console(ctx, 0)
package client
