package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/stockpro/internal/model"
	"github.com/roach88/stockpro/internal/queue"
	"github.com/roach88/stockpro/internal/remote"
)

const (
	// MaxAttempts is the retryable-failure ceiling per operation.
	MaxAttempts = 3

	// MaxConsecutiveFailures ends a pass after this many failures in a row.
	MaxConsecutiveFailures = 3

	// DefaultDeadLetterCapacity bounds the in-memory eviction history.
	DefaultDeadLetterCapacity = 100
)

// Queue is the part of *queue.Queue the engine consumes.
type Queue interface {
	PeekFront() (queue.Operation, bool)
	Remove(ctx context.Context, id string)
	IncrementAttempts(ctx context.Context, id string) (int, bool)
	RewriteProductID(ctx context.Context, from, to string) int
	Len() int
}

// Reconciler receives authoritative results so local state can drop
// temporary ids and adopt the remote copy after a full refresh.
type Reconciler interface {
	ReconcileProduct(ctx context.Context, localID string, p model.Product)
	ReconcileMovement(ctx context.Context, localID string, m model.StockMovement)
	ReconcileSale(ctx context.Context, localID, remoteID string)
	Replace(ctx context.Context, snap model.Snapshot)
}

// Connectivity is the online predicate consulted before a pass.
type Connectivity interface {
	IsOnline() bool
}

// Observer is notified of replay outcomes. The metrics package implements
// it.
type Observer interface {
	OperationReplayed(kind queue.Kind, outcome string, d time.Duration)
	OperationEvicted(kind queue.Kind, reason ReplayErrorCode)
	PassFinished(r Report, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) OperationReplayed(queue.Kind, string, time.Duration) {}
func (nopObserver) OperationEvicted(queue.Kind, ReplayErrorCode)        {}
func (nopObserver) PassFinished(Report, time.Duration)                  {}

// Engine drains the pending-operation queue. Safe for concurrent use; at
// most one pass runs at a time.
type Engine struct {
	queue      Queue
	remote     remote.Store
	reconciler Reconciler
	conn       Connectivity
	observer   Observer
	owner      string
	now        func() time.Time

	running atomic.Bool
	dead    *deadLetter

	mu     sync.Mutex
	status Status
}

// Option configures an Engine.
type Option func(*Engine)

// WithOwner sets the user id sent with transactions and settings.
func WithOwner(owner string) Option {
	return func(e *Engine) { e.owner = owner }
}

// WithConnectivity makes passes skip remote calls while offline.
func WithConnectivity(c Connectivity) Option {
	return func(e *Engine) { e.conn = c }
}

// WithObserver installs a replay observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithNow sets the clock used for LastSyncAt and eviction timestamps.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithDeadLetterCapacity bounds the eviction history.
//
// Default: 100 (DefaultDeadLetterCapacity). Zero disables the history.
func WithDeadLetterCapacity(n int) Option {
	return func(e *Engine) { e.dead.limit = n }
}

// New creates an Engine.
func New(q Queue, r remote.Store, rec Reconciler, opts ...Option) *Engine {
	e := &Engine{
		queue:      q,
		remote:     r,
		reconciler: rec,
		observer:   nopObserver{},
		now:        time.Now,
		dead:       &deadLetter{limit: DefaultDeadLetterCapacity},
		status:     Status{State: StateIdle},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	s := e.status
	e.mu.Unlock()
	s.Pending = e.queue.Len()
	s.DeadLetter = e.dead.size()
	return s
}

// Evicted returns the dead-lettered operations, oldest first.
func (e *Engine) Evicted() []EvictedOperation {
	return e.dead.list()
}

// Running reports whether a pass is in progress.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// DrainOptions tunes one pass.
type DrainOptions struct {
	// Backoff paces retries. When positive, a front operation that already
	// failed is left alone until Backoff·2^attempts has passed since its
	// last attempt, and the pass stops with StopBackoff.
	Backoff time.Duration
}

// Drain runs one pass that replays the front operation whatever its
// history. If a pass is already running it returns at once with Skipped
// set.
func (e *Engine) Drain(ctx context.Context) Report {
	return e.DrainWith(ctx, DrainOptions{})
}

// DrainWith is Drain with options.
func (e *Engine) DrainWith(ctx context.Context, opts DrainOptions) Report {
	if !e.running.CompareAndSwap(false, true) {
		slog.Debug("sync pass already in progress")
		return Report{Skipped: true, StopReason: StopAlreadyRunning, Remaining: e.queue.Len()}
	}
	defer e.running.Store(false)

	e.setState(StateSyncing)
	start := e.now()
	rep := e.pass(ctx, opts)
	rep.Remaining = e.queue.Len()

	if rep.StopReason == StopDrained && rep.Succeeded > 0 {
		if err := e.refresh(ctx); err != nil {
			slog.Warn("refresh after sync failed", "error", err)
		} else {
			rep.Refreshed = true
		}
	}

	e.finish(rep)
	elapsed := e.now().Sub(start)
	e.observer.PassFinished(rep, elapsed)

	attrs := []any{
		"attempted", rep.Attempted, "succeeded", rep.Succeeded, "retried", rep.Retried,
		"evicted", rep.Evicted, "remaining", rep.Remaining, "stop", rep.StopReason,
		"refreshed", rep.Refreshed, "duration", elapsed,
	}
	if rep.Attempted > 0 || (rep.Remaining > 0 && rep.StopReason != StopBackoff) {
		slog.Info("sync pass finished", attrs...)
	} else {
		slog.Debug("sync pass finished", attrs...)
	}
	return rep
}

func (e *Engine) pass(ctx context.Context, opts DrainOptions) Report {
	var rep Report

	if e.queue.Len() == 0 {
		rep.StopReason = StopDrained
		return rep
	}
	if e.conn != nil && !e.conn.IsOnline() {
		rep.StopReason = StopOffline
		return rep
	}

	consecutive := 0
	for {
		if err := ctx.Err(); err != nil {
			rep.StopReason = StopCanceled
			return rep
		}
		op, ok := e.queue.PeekFront()
		if !ok {
			rep.StopReason = StopDrained
			return rep
		}
		if at := op.RetryAt(opts.Backoff); e.now().Before(at) {
			rep.StopReason = StopBackoff
			rep.RetryAt = at
			slog.Debug("front operation backing off", "id", op.ID, "kind", op.Kind, "attempts", op.Attempts, "retry_at", at)
			return rep
		}

		rep.Attempted++
		started := e.now()
		err := e.replay(ctx, op)
		outcome := classify(ctx, err)
		e.observer.OperationReplayed(op.Kind, string(outcome), e.now().Sub(started))

		switch outcome {
		case outcomeSuccess:
			consecutive = 0
			rep.Succeeded++
			slog.Debug("replayed operation", "id", op.ID, "kind", op.Kind, "seq", op.Seq)
			continue

		case outcomeAbort:
			rep.Err = newReplayError(ErrCodeAborted, op, op.Attempts, err)
			rep.StopReason = abortReason(ctx, err)
			slog.Warn("sync pass aborted", "id", op.ID, "kind", op.Kind, "reason", rep.StopReason, "error", err)
			return rep

		case outcomeTerminal:
			consecutive++
			rep.Evicted++
			rep.Err = e.evict(ctx, op, ErrCodeTerminal, op.Attempts, err)

		case outcomeRetryable:
			consecutive++
			attempts, _ := e.queue.IncrementAttempts(ctx, op.ID)
			if attempts >= MaxAttempts {
				rep.Evicted++
				rep.Err = e.evict(ctx, op, ErrCodeAttemptsExhausted, attempts, err)
				break
			}
			rep.Retried++
			rep.Err = newReplayError(ErrCodeRetryable, op, attempts, err)
			rep.StopReason = StopRetryable
			slog.Info("operation will be retried", "id", op.ID, "kind", op.Kind, "attempts", attempts, "error", err)
			return rep
		}

		if consecutive >= MaxConsecutiveFailures {
			rep.StopReason = StopConsecutiveFailures
			slog.Warn("too many consecutive sync failures, stopping pass", "failures", consecutive)
			return rep
		}
	}
}

func (e *Engine) evict(ctx context.Context, op queue.Operation, code ReplayErrorCode, attempts int, cause error) error {
	e.queue.Remove(ctx, op.ID)
	rerr := newReplayError(code, op, attempts, cause)
	e.dead.add(EvictedOperation{Operation: op, Reason: code, Error: cause.Error(), At: e.now().UTC()})
	e.observer.OperationEvicted(op.Kind, code)
	slog.Warn("evicted pending operation",
		"id", op.ID, "kind", op.Kind, "seq", op.Seq, "attempts", attempts,
		"reason", code, "error", cause)
	return rerr
}

// refresh replaces local state with the remote copy of every collection.
func (e *Engine) refresh(ctx context.Context) error {
	snap, err := remote.FetchSnapshot(ctx, e.remote, e.owner)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	e.reconciler.Replace(ctx, snap)
	slog.Debug("refreshed local state", "products", len(snap.Products), "movements", len(snap.Movements), "sales", len(snap.Sales))
	return nil
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.State = s
}

func (e *Engine) finish(rep Report) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.State = StateIdle
	e.status.LastPass = rep
	if rep.Succeeded > 0 || rep.StopReason == StopDrained {
		e.status.LastSyncAt = e.now().UTC()
	}
	switch {
	case rep.Err != nil:
		e.status.LastError = rep.Err.Error()
	case rep.StopReason == StopDrained:
		e.status.LastError = ""
	}
}

func abortReason(ctx context.Context, err error) StopReason {
	switch {
	case remote.IsAuth(err), errors.Is(err, errNoOwner):
		return StopAuth
	case ctx.Err() != nil && errors.Is(err, context.Canceled):
		return StopCanceled
	}
	return StopOffline
}
