// Package testutil holds deterministic time and id sources shared by tests
// and the scenario harness.
package testutil

import (
	"sync"
	"time"
)

// DeterministicClock is a resettable logical clock. The first call to Next
// returns 1. Safe for concurrent use.
type DeterministicClock struct {
	mu  sync.Mutex
	seq int64
}

// NewDeterministicClock creates a clock starting at 0.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next increments and returns the sequence number.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the sequence number without incrementing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset sets the clock back to 0.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}

// DefaultWallTime is where a WallClock starts when given the zero time.
var DefaultWallTime = time.Date(2026, time.June, 15, 14, 30, 0, 0, time.UTC)

// WallClock is a manually advanced wall clock. Its Now method fits every
// WithNow/WithClock option in the module.
type WallClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewWallClock creates a clock reading start, or DefaultWallTime if start
// is zero.
func NewWallClock(start time.Time) *WallClock {
	if start.IsZero() {
		start = DefaultWallTime
	}
	return &WallClock{now: start}
}

// Now returns the current reading.
func (c *WallClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *WallClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
