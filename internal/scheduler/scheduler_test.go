package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/stockpro/internal/connectivity"
	"github.com/roach88/stockpro/internal/engine"
	"github.com/roach88/stockpro/internal/model"
	"github.com/roach88/stockpro/internal/queue"
	"github.com/roach88/stockpro/internal/remote"
	"github.com/roach88/stockpro/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeDrainer empties the fake queue on every pass, unless hold is set,
// in which case each pass waits for a value on hold and leaves the queue
// as it was.
type fakeDrainer struct {
	pending *fakePending
	passes  atomic.Int32
	paced   atomic.Int32
	hold    chan struct{}
}

func (d *fakeDrainer) DrainWith(_ context.Context, opts engine.DrainOptions) engine.Report {
	d.passes.Add(1)
	if opts.Backoff > 0 {
		d.paced.Add(1)
	}
	if d.hold != nil {
		<-d.hold
		return engine.Report{StopReason: engine.StopRetryable, Remaining: d.pending.Len()}
	}
	n := d.pending.n.Swap(0)
	return engine.Report{Attempted: int(n), Succeeded: int(n), StopReason: engine.StopDrained}
}

type fakePending struct{ n atomic.Int64 }

func (p *fakePending) Len() int { return int(p.n.Load()) }

func newFakes(pending int64) (*fakeDrainer, *fakePending) {
	p := &fakePending{}
	p.n.Store(pending)
	return &fakeDrainer{pending: p}, p
}

func TestStart_DrainsPendingAtStartup(t *testing.T) {
	d, p := newFakes(2)
	reports := make(chan engine.Report, 1)
	s := New(d, p, nil, WithInterval(time.Hour), WithPassHook(func(r engine.Report) { reports <- r }))

	s.Start(context.Background())
	defer s.Stop()

	select {
	case rep := <-reports:
		assert.Equal(t, 2, rep.Succeeded)
	case <-time.After(time.Second):
		t.Fatal("no startup drain")
	}
	assert.Equal(t, int32(1), d.passes.Load())
}

func TestStart_EmptyQueueDoesNotDrain(t *testing.T) {
	d, p := newFakes(0)
	s := New(d, p, nil, WithInterval(time.Hour))

	s.Start(context.Background())
	s.RequestSync()
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	assert.Equal(t, int32(0), d.passes.Load())
}

func TestRegainedTriggersDrain(t *testing.T) {
	d, p := newFakes(0)
	m := connectivity.NewMonitor(false)
	s := New(d, p, m, WithInterval(time.Hour))
	s.Start(context.Background())
	defer s.Stop()

	p.n.Store(1)
	s.RequestSync()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), d.passes.Load(), "offline requests are skipped")

	m.SetOnline(true)
	require.Eventually(t, func() bool { return d.passes.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, p.Len())
}

func TestIntervalTriggersDrain(t *testing.T) {
	d, p := newFakes(0)
	s := New(d, p, nil, WithInterval(5*time.Millisecond))
	s.Start(context.Background())
	defer s.Stop()

	p.n.Store(3)
	require.Eventually(t, func() bool { return p.Len() == 0 }, time.Second, time.Millisecond)
}

func TestTriggersChoosePacing(t *testing.T) {
	d, p := newFakes(1)
	s := New(d, p, nil, WithInterval(time.Hour))
	s.Start(context.Background())
	require.Eventually(t, func() bool { return d.passes.Load() == 1 }, time.Second, time.Millisecond)
	s.Stop()
	assert.Equal(t, int32(0), d.paced.Load(), "startup drains are not paced")

	d, p = newFakes(0)
	s = New(d, p, nil, WithInterval(5*time.Millisecond))
	s.Start(context.Background())
	p.n.Store(1)
	require.Eventually(t, func() bool { return d.passes.Load() >= 1 }, time.Second, time.Millisecond)
	s.Stop()
	assert.Equal(t, d.passes.Load(), d.paced.Load(), "ticks are paced")
}

type frozenClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *frozenClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *frozenClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type nopReconciler struct{}

func (nopReconciler) ReconcileProduct(context.Context, string, model.Product)        {}
func (nopReconciler) ReconcileMovement(context.Context, string, model.StockMovement) {}
func (nopReconciler) ReconcileSale(context.Context, string, string)                  {}
func (nopReconciler) Replace(context.Context, model.Snapshot)                        {}

func TestIntervalDoesNotExhaustAttemptsDuringOutage(t *testing.T) {
	ctx := context.Background()
	clock := &frozenClock{now: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)}
	q := queue.Open(ctx, store.NewMemory(), queue.WithNow(clock.Now))
	r := remote.NewMemory(remote.WithClock(clock.Now))
	for i := 0; i < 10; i++ {
		r.FailNext("RecordTransaction", remote.NewError(remote.ClassTransient, "503", "service unavailable"))
	}
	e := engine.New(q, r, nopReconciler{}, engine.WithOwner("owner-1"), engine.WithNow(clock.Now))

	const interval = 2 * time.Millisecond
	var deferred atomic.Int32
	s := New(e, q, nil, WithInterval(interval), WithPassHook(func(rep engine.Report) {
		if rep.StopReason == engine.StopBackoff {
			deferred.Add(1)
		}
	}))
	s.Start(ctx)
	defer s.Stop()

	_, err := q.Enqueue(ctx, queue.RecordTransaction{
		LocalID: "local-sale-1",
		Transaction: model.TransactionPayload{
			Items:         []model.SaleItem{{ProductID: "p1", Name: "Riz", Price: decimal.NewFromInt(2), Quantity: 1}},
			Total:         decimal.NewFromInt(2),
			PaymentMethod: model.PaymentCash,
		},
	})
	require.NoError(t, err)

	attempts := func() int {
		op, ok := q.PeekFront()
		if !ok {
			return -1
		}
		return op.Attempts
	}

	// The first tick makes the first attempt, later ticks wait.
	require.Eventually(t, func() bool { return deferred.Load() >= 5 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, attempts())
	assert.Empty(t, e.Evicted())

	// Once the delay has passed, one tick retries and the next delay doubles.
	clock.Advance(interval << 1)
	require.Eventually(t, func() bool { return attempts() == 2 }, time.Second, time.Millisecond)
	before := deferred.Load()
	require.Eventually(t, func() bool { return deferred.Load() >= before+5 }, time.Second, time.Millisecond)
	assert.Equal(t, 2, attempts())

	// An explicit request is not paced.
	s.RequestSync()
	require.Eventually(t, func() bool { return q.Len() == 0 }, time.Second, time.Millisecond)
	require.Len(t, e.Evicted(), 1)
	assert.Equal(t, engine.ErrCodeAttemptsExhausted, e.Evicted()[0].Reason)
}

func TestRequestsCoalesce(t *testing.T) {
	d, p := newFakes(1)
	d.hold = make(chan struct{})
	s := New(d, p, nil, WithInterval(time.Hour))
	s.Start(context.Background())

	require.Eventually(t, func() bool { return d.passes.Load() == 1 }, time.Second, time.Millisecond)
	for i := 0; i < 10; i++ {
		s.RequestSync()
	}
	d.hold <- struct{}{}
	d.hold <- struct{}{}
	require.Eventually(t, func() bool { return d.passes.Load() == 2 }, time.Second, time.Millisecond)

	close(d.hold)
	s.Stop()
	assert.Equal(t, int32(2), d.passes.Load(), "ten requests during a pass yield one follow-up")
}

func TestStopUnsubscribes(t *testing.T) {
	d, p := newFakes(1)
	m := connectivity.NewMonitor(false)
	s := New(d, p, m, WithInterval(time.Hour))
	s.Start(context.Background())
	s.Stop()
	s.Stop()

	m.SetOnline(true)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), d.passes.Load())
}

func TestContextCancelStopsLoop(t *testing.T) {
	d, p := newFakes(0)
	s := New(d, p, nil, WithInterval(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()
	s.Stop()
}
