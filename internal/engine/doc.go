// Package engine replays pending operations against the remote store.
//
// A drain pass takes the queue front, applies it remotely, and acts on the
// outcome:
//
//	success    remove, reset the failure streak, reconcile local ids, continue
//	terminal   evict (dead-letter), extend the streak, continue
//	retryable  count an attempt; evict at MaxAttempts and continue,
//	           otherwise stop the pass so order is preserved
//	abort      auth or connectivity lost: stop now, touch nothing
//
// MaxConsecutiveFailures failures in a row end the pass. A pass that ends
// with an empty queue and at least one success refreshes every collection
// from the remote store.
//
// DrainWith can pace retries: with DrainOptions.Backoff set, a front
// operation that already failed is left in place until Backoff·2^attempts
// has passed since its last attempt, and the pass stops with StopBackoff.
//
// Only one pass runs at a time. A second request while a pass is running
// returns immediately with Report.Skipped set. Passes are interrupted only
// between operations; a canceled context is noticed before the next
// operation starts.
package engine
