package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/stockpro/internal/ident"
	"github.com/roach88/stockpro/internal/store"
)

// StorageKey is the KV key holding the serialized queue.
const StorageKey = "stockpro_sync_queue"

// Queue is a thread-safe persisted FIFO of operations.
type Queue struct {
	mu        sync.Mutex
	kv        store.KV
	ops       []Operation
	clock     *Clock
	ids       ident.Generator
	now       func() time.Time
	ephemeral bool

	obsMu     sync.Mutex
	observers map[int]func(int)
	nextObs   int
}

// Option configures a Queue.
type Option func(*Queue)

// WithIDGenerator sets the operation id generator (UUIDv7 by default).
func WithIDGenerator(g ident.Generator) Option {
	return func(q *Queue) { q.ids = g }
}

// WithNow sets the wall clock used for EnqueuedAt and LastAttemptAt.
func WithNow(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// Open loads the persisted queue from kv. A nil kv, a read failure or an
// unreadable document all yield a working queue; see package docs.
func Open(ctx context.Context, kv store.KV, opts ...Option) *Queue {
	q := &Queue{
		kv:        kv,
		ids:       ident.UUIDv7Generator{},
		now:       time.Now,
		observers: make(map[int]func(int)),
	}
	for _, opt := range opts {
		opt(q)
	}

	if kv == nil {
		q.ephemeral = true
		q.clock = NewClock()
		return q
	}

	q.ops = q.load(ctx)
	var maxSeq int64
	for _, op := range q.ops {
		maxSeq = max(maxSeq, op.Seq)
	}
	q.clock = NewClockAt(maxSeq)

	if len(q.ops) > 0 {
		slog.Info("restored pending operations", "count", len(q.ops), "next_seq", maxSeq+1)
	}
	return q
}

func (q *Queue) load(ctx context.Context) []Operation {
	data, found, err := q.kv.Get(ctx, StorageKey)
	if err != nil {
		q.degrade(ctx, "load", err)
		return nil
	}
	if !found || len(data) == 0 {
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		slog.Warn("discarding unreadable sync queue", "error", err)
		return nil
	}

	ops := make([]Operation, 0, len(raw))
	for i, r := range raw {
		var op Operation
		if err := json.Unmarshal(r, &op); err != nil {
			slog.Warn("dropping undecodable pending operation", "index", i, "error", err)
			continue
		}
		ops = append(ops, op)
	}
	slices.SortStableFunc(ops, func(a, b Operation) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
	return ops
}

// degrade switches to ephemeral mode. After a failed write the persisted
// document no longer matches memory, so one attempt is made to delete it:
// operations replayed in this session must not come back on the next start.
// Caller holds q.mu or is still constructing q.
func (q *Queue) degrade(ctx context.Context, op string, err error) {
	if q.ephemeral {
		return
	}
	q.ephemeral = true
	slog.Warn("sync queue storage unavailable, continuing in memory for this session",
		"op", op, "error", err)

	if op != "write" {
		return
	}
	if derr := q.kv.Delete(ctx, StorageKey); derr != nil {
		slog.Error("stale sync queue left in storage, pending operations may replay twice after restart",
			"key", StorageKey, "error", derr)
		return
	}
	slog.Info("removed stale sync queue from storage", "key", StorageKey)
}

// persist writes the queue. Caller holds q.mu.
func (q *Queue) persist(ctx context.Context) {
	if q.ephemeral {
		return
	}
	data, err := json.Marshal(q.ops)
	if err != nil {
		// Payloads are validated on the way in, so this is a programming error.
		slog.Error("encode sync queue", "error", err)
		return
	}
	if err := q.kv.Set(ctx, StorageKey, data); err != nil {
		q.degrade(ctx, "write", err)
	}
}

// Enqueue validates p and appends it with zero attempts.
func (q *Queue) Enqueue(ctx context.Context, p Payload) (string, error) {
	if p == nil {
		return "", fmt.Errorf("enqueue: nil payload")
	}
	if err := p.Validate(); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", p.Kind(), err)
	}
	fp, err := Fingerprint(p)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", p.Kind(), err)
	}

	q.mu.Lock()
	op := Operation{
		ID:          q.ids.NewID(),
		Kind:        p.Kind(),
		Payload:     p,
		Seq:         q.clock.Next(),
		EnqueuedAt:  q.now().UTC(),
		Fingerprint: fp,
	}
	q.ops = append(q.ops, op)
	q.persist(ctx)
	n := len(q.ops)
	q.mu.Unlock()

	slog.Debug("enqueued operation", "id", op.ID, "kind", op.Kind, "seq", op.Seq, "pending", n)
	q.notify(n)
	return op.ID, nil
}

// PeekFront returns the oldest operation without removing it.
func (q *Queue) PeekFront() (Operation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ops) == 0 {
		return Operation{}, false
	}
	return q.ops[0], true
}

// Remove deletes the operation with the given id. Removing an unknown id is
// a no-op.
func (q *Queue) Remove(ctx context.Context, id string) {
	q.mu.Lock()
	i := q.indexOf(id)
	if i < 0 {
		q.mu.Unlock()
		return
	}
	q.ops = slices.Delete(q.ops, i, i+1)
	q.persist(ctx)
	n := len(q.ops)
	q.mu.Unlock()

	q.notify(n)
}

// IncrementAttempts bumps the attempt count of id, stamps LastAttemptAt and
// returns the new count.
func (q *Queue) IncrementAttempts(ctx context.Context, id string) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexOf(id)
	if i < 0 {
		return 0, false
	}
	q.ops[i].Attempts++
	q.ops[i].LastAttemptAt = q.now().UTC()
	q.persist(ctx)
	return q.ops[i].Attempts, true
}

// RewriteProductID replaces product id from with to in every pending
// payload and returns how many operations changed.
func (q *Queue) RewriteProductID(ctx context.Context, from, to string) int {
	if from == "" || from == to {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	changed := 0
	for i := range q.ops {
		if p, ok := rewriteProductID(q.ops[i].Payload, from, to); ok {
			q.ops[i].Payload = p
			changed++
		}
	}
	if changed > 0 {
		q.persist(ctx)
		slog.Debug("rewrote product id in pending operations", "from", from, "to", to, "count", changed)
	}
	return changed
}

// Len returns the number of pending operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// List returns a copy of the pending operations in replay order.
func (q *Queue) List() []Operation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.ops)
}

// Clear drops every pending operation.
func (q *Queue) Clear(ctx context.Context) {
	q.mu.Lock()
	q.ops = nil
	q.persist(ctx)
	q.mu.Unlock()

	q.notify(0)
}

// Ephemeral reports whether the queue has lost its backing store.
func (q *Queue) Ephemeral() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ephemeral
}

// Subscribe registers fn to receive the queue length after every change.
// The returned function unregisters it.
func (q *Queue) Subscribe(fn func(int)) (unsubscribe func()) {
	q.obsMu.Lock()
	defer q.obsMu.Unlock()
	id := q.nextObs
	q.nextObs++
	q.observers[id] = fn
	return func() {
		q.obsMu.Lock()
		defer q.obsMu.Unlock()
		delete(q.observers, id)
	}
}

func (q *Queue) notify(n int) {
	q.obsMu.Lock()
	fns := make([]func(int), 0, len(q.observers))
	for _, fn := range q.observers {
		fns = append(fns, fn)
	}
	q.obsMu.Unlock()

	for _, fn := range fns {
		fn(n)
	}
}

func (q *Queue) indexOf(id string) int {
	return slices.IndexFunc(q.ops, func(op Operation) bool { return op.ID == id })
}
