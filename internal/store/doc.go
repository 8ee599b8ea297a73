// Package store provides the local durable key/value storage used by the
// pending-operation queue and the offline cache.
//
// Every value is an opaque byte slice stored under a string key. A single
// Set is atomic: readers see either the old value or the new one, never a
// mix. The queue relies on this by persisting its whole content under one
// key.
//
// Two implementations exist:
//   - Store: SQLite file (the production backend)
//   - Memory: map-backed, for tests and demo mode; can be told to fail
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
