// Package engine runs a reconciler outside a controller-runtime manager.
//
// An Engine owns a client-go rate-limiting work queue and a fixed pool of
// workers. Requests are deduplicated by the queue: a key already waiting is
// not queued twice, and a key re-added while it is being processed is
// handled again once the current pass finishes. Watch feeds the queue from
// a store.Memory event stream, mapping dependents to their controlling
// ManagedApp.
//
// The operator binary does not use this package for scheduling; it hands
// NewRateLimiter to controller-runtime so both modes back off the same way.
package engine
