// Package queue is the durable FIFO of pending mutation intents.
//
// A user action that cannot be confirmed against the remote store right
// away becomes one Operation at the back of the queue. The sync engine is
// the only consumer: it peeks the front, replays it, and removes it or
// counts an attempt. Nothing is ever reordered.
//
// The whole queue is persisted as one JSON document under StorageKey, so a
// write is atomic with respect to process death. When the backing store
// fails the queue keeps working in memory for the rest of the session
// (ephemeral mode) and logs a warning once. A failed write also deletes the
// now outdated document, if the store still allows it. Callers never see storage
// errors; the only error Enqueue returns is payload validation.
package queue
