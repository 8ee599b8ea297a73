// Package model defines the point-of-sale entities shared by the queue, the
// sync engine, the state controller and the remote store adapters.
//
// Money is carried as decimal.Decimal end to end. JSON encodes decimals as
// strings, which keeps persisted snapshots exact and lets payloads pass
// through canonical JSON (which forbids floats).
//
// Quantities are int64 and never negative: every decrement clamps at zero
// (see ApplyMovement).
package model
