package state

import (
	"context"
	"log/slog"

	"github.com/roach88/stockpro/internal/model"
	"github.com/roach88/stockpro/internal/queue"
)

// step is one remote effect of a local mutation: the intent to queue and
// the direct call that performs it.
type step struct {
	payload queue.Payload
	send    func(ctx context.Context) error
}

// direct reports whether a mutation may go straight to the remote store.
// A non-empty queue forces queueing so the new intent is replayed after
// the ones it may depend on.
func (s *State) direct() bool {
	return s.remote != nil && s.owner != "" && s.online() && s.queue.Len() == 0
}

// dispatch performs steps in order against the remote store, or queues
// them. When a direct call fails, that step and every step after it are
// queued; the steps already performed are not.
func (s *State) dispatch(ctx context.Context, steps ...step) {
	done := 0
	if s.direct() {
		for _, st := range steps {
			if err := st.send(ctx); err != nil {
				slog.Info("remote call failed, queueing", "kind", st.payload.Kind(), "error", err)
				break
			}
			done++
		}
	}
	for _, st := range steps[done:] {
		if _, err := s.queue.Enqueue(ctx, st.payload); err != nil {
			// Payloads are validated before local state changes, so this is
			// a programming error rather than bad input.
			slog.Error("enqueue rejected payload", "kind", st.payload.Kind(), "error", err)
		}
	}
}

// persist writes the given collections of the current state to the cache.
// Cache failures are logged; the in-memory state stays authoritative.
func (s *State) persist(ctx context.Context, cols ...model.Collection) {
	snap := s.Snapshot()
	for _, col := range cols {
		var v any
		switch col {
		case model.CollectionProducts:
			v = snap.Products
		case model.CollectionMovements:
			v = snap.Movements
		case model.CollectionSales:
			v = snap.Sales
		case model.CollectionSettings:
			v = snap.Settings
		default:
			continue
		}
		if err := s.cache.Save(ctx, col, v); err != nil {
			slog.Warn("write offline cache", "collection", col, "error", err)
		}
	}
}
