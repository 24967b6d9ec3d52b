// Package notifier debounces edits into rebuilds.
//
// Two independent state machines run per buffer set:
//
//	save:    Idle -> PendingSave -> Idle        (synchronous, every edit)
//	rebuild: Idle -> PendingRebuild -> Idle     (timer, restarted by every edit)
//
// A burst of edits closer together than the delay yields exactly one rebuild,
// timed from the last edit. With auto-run off edits still save but never
// schedule a rebuild; RunNow rebuilds immediately either way.
package notifier
