package engine

import (
	"sync"
	"time"

	"github.com/roach88/stockpro/internal/queue"
)

// State is the engine's pass state.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
)

// StopReason says why a pass ended.
type StopReason string

const (
	StopDrained             StopReason = "drained"
	StopRetryable           StopReason = "retryable_failure"
	StopConsecutiveFailures StopReason = "consecutive_failures"
	StopAuth                StopReason = "auth"
	StopOffline             StopReason = "offline"
	StopCanceled            StopReason = "canceled"
	StopAlreadyRunning      StopReason = "already_running"
	// StopBackoff: the front operation failed recently and a paced pass
	// left it for later.
	StopBackoff             StopReason = "backoff"
)

// Report summarizes one pass.
type Report struct {
	Attempted  int        `json:"attempted"`
	Succeeded  int        `json:"succeeded"`
	Retried    int        `json:"retried"`
	Evicted    int        `json:"evicted"`
	Remaining  int        `json:"remaining"`
	StopReason StopReason `json:"stop_reason"`
	Refreshed  bool       `json:"refreshed"`
	Skipped    bool       `json:"skipped"`
	RetryAt    time.Time  `json:"retry_at,omitzero"`
	Err        error      `json:"-"`
}

// Status is the observable engine state.
type Status struct {
	State      State     `json:"state"`
	LastSyncAt time.Time `json:"last_sync_at"`
	Pending    int       `json:"pending"`
	LastError  string    `json:"last_error,omitempty"`
	LastPass   Report    `json:"last_pass"`
	DeadLetter int       `json:"dead_letter"`
}

// EvictedOperation is a dead-lettered operation.
type EvictedOperation struct {
	Operation queue.Operation `json:"operation"`
	Reason    ReplayErrorCode `json:"reason"`
	Error     string          `json:"error"`
	At        time.Time       `json:"at"`
}

// deadLetter keeps the most recent evictions, oldest dropped first.
type deadLetter struct {
	mu    sync.Mutex
	limit int
	items []EvictedOperation
}

func (d *deadLetter) add(e EvictedOperation) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.limit <= 0 {
		return
	}
	if len(d.items) >= d.limit {
		copy(d.items, d.items[1:])
		d.items = d.items[:len(d.items)-1]
	}
	d.items = append(d.items, e)
}

func (d *deadLetter) list() []EvictedOperation {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]EvictedOperation, len(d.items))
	copy(out, d.items)
	return out
}

func (d *deadLetter) size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}
