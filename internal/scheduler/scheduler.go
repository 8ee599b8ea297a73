// Package scheduler decides when the sync engine drains the queue.
//
// A drain is requested when connectivity is regained, at startup when
// operations are pending, on every tick of the sync interval, and on
// demand through RequestSync. Requests coalesce: while a drain runs, any
// number of new requests produce at most one follow-up drain.
//
// Periodic drains are paced: an operation that failed is retried by the
// ticker only after an exponential delay based on the interval. Regained
// connectivity, startup and RequestSync replay it at once.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/stockpro/internal/engine"
)

// DefaultInterval is the time between periodic drains.
const DefaultInterval = time.Minute

// Drainer runs one drain pass.
type Drainer interface {
	DrainWith(ctx context.Context, opts engine.DrainOptions) engine.Report
}

// Pending reports how many operations wait in the queue.
type Pending interface {
	Len() int
}

// Connectivity is the online predicate plus the regained event.
type Connectivity interface {
	IsOnline() bool
	OnRegained(fn func()) (unsubscribe func())
}

// Scheduler owns the background drain loop.
type Scheduler struct {
	drainer  Drainer
	pending  Pending
	conn     Connectivity
	interval time.Duration
	onPass   func(engine.Report)

	// Size 1: a pending wake-up absorbs further requests.
	signal chan struct{}

	mu          sync.Mutex
	stopCh      chan struct{}
	wg          sync.WaitGroup
	running     bool
	unsubscribe func()
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the periodic drain interval.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithPassHook runs fn after every drain the scheduler starts.
func WithPassHook(fn func(engine.Report)) Option {
	return func(s *Scheduler) { s.onPass = fn }
}

// New creates a stopped scheduler. conn may be nil, meaning always online
// and no regained events.
func New(d Drainer, p Pending, conn Connectivity, opts ...Option) *Scheduler {
	s := &Scheduler{
		drainer:  d,
		pending:  p,
		conn:     conn,
		interval: DefaultInterval,
		signal:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestSync asks for a drain. It never blocks.
func (s *Scheduler) RequestSync() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Start launches the loop. A drain is requested at once when operations
// are pending. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stop := s.stopCh
	if s.conn != nil {
		s.unsubscribe = s.conn.OnRegained(s.RequestSync)
	}
	s.mu.Unlock()

	if s.pending.Len() > 0 {
		s.RequestSync()
	}

	s.wg.Add(1)
	go s.loop(ctx, stop)
	slog.Info("sync scheduler started", "interval", s.interval)
}

// Stop halts the loop and waits for an in-flight drain to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.mu.Unlock()

	s.wg.Wait()
	slog.Info("sync scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			s.maybeDrain(ctx, "interval", engine.DrainOptions{Backoff: s.interval})
		case <-s.signal:
			s.maybeDrain(ctx, "request", engine.DrainOptions{})
		}
	}
}

func (s *Scheduler) maybeDrain(ctx context.Context, trigger string, opts engine.DrainOptions) {
	if s.pending.Len() == 0 {
		return
	}
	if s.conn != nil && !s.conn.IsOnline() {
		slog.Debug("drain skipped while offline", "trigger", trigger)
		return
	}

	rep := s.drainer.DrainWith(ctx, opts)
	if rep.StopReason == engine.StopBackoff {
		slog.Debug("drain deferred", "trigger", trigger, "retry_at", rep.RetryAt)
		if s.onPass != nil {
			s.onPass(rep)
		}
		return
	}
	slog.Info("drain pass finished",
		"trigger", trigger,
		"stop_reason", rep.StopReason,
		"succeeded", rep.Succeeded,
		"evicted", rep.Evicted,
		"remaining", rep.Remaining)
	if s.onPass != nil {
		s.onPass(rep)
	}
}
