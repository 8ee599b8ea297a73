package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/stockpro/internal/model"
	"github.com/roach88/stockpro/internal/queue"
	"github.com/roach88/stockpro/internal/remote"
)

type outcome string

const (
	outcomeSuccess   outcome = "success"
	outcomeRetryable outcome = "retryable"
	outcomeTerminal  outcome = "terminal"
	outcomeAbort     outcome = "abort"
)

// errNoOwner means an operation needs a signed-in owner and there is none.
var errNoOwner = errors.New("no signed-in owner")

// classify maps a replay error onto the engine's reaction.
func classify(ctx context.Context, err error) outcome {
	switch {
	case err == nil:
		return outcomeSuccess
	case queue.IsValidation(err):
		return outcomeTerminal
	case errors.Is(err, errNoOwner):
		return outcomeAbort
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return outcomeAbort
	}
	switch remote.ClassOf(err) {
	case remote.ClassValidation, remote.ClassConstraint, remote.ClassSchema:
		return outcomeTerminal
	case remote.ClassAuth, remote.ClassOffline:
		return outcomeAbort
	}
	return outcomeRetryable
}

// replay applies op remotely and reconciles local state on success.
func (e *Engine) replay(ctx context.Context, op queue.Operation) error {
	if op.Payload == nil {
		return &model.ValidationError{Field: "payload", Message: "missing"}
	}
	if err := op.Payload.Validate(); err != nil {
		return err
	}

	switch p := op.Payload.(type) {
	case queue.CreateEntity:
		return e.replayCreate(ctx, op, p)

	case queue.UpdateEntity:
		if err := e.remote.UpdateProduct(ctx, p.ID, p.Patch); err != nil {
			return err
		}

	case queue.DeleteEntity:
		if err := e.remote.DeleteProduct(ctx, p.ID); err != nil {
			return err
		}

	case queue.RecordTransaction:
		if e.owner == "" {
			return errNoOwner
		}
		id, err := e.remote.RecordTransaction(ctx, p.Transaction, e.owner, op.Fingerprint)
		if err != nil {
			return err
		}
		e.queue.Remove(ctx, op.ID)
		e.reconciler.ReconcileSale(ctx, p.LocalID, id)
		return nil

	case queue.UpdateSettings:
		if e.owner == "" {
			return errNoOwner
		}
		if err := e.remote.UpsertSettings(ctx, e.owner, p.Settings); err != nil {
			return err
		}

	default:
		return &model.ValidationError{Field: "kind", Message: fmt.Sprintf("unsupported payload %T", op.Payload)}
	}

	e.queue.Remove(ctx, op.ID)
	return nil
}

// replayCreate inserts the entity, removes the operation, then rewrites the
// temporary id everywhere. Removal comes first so the operation is never
// replayed again after the remote store accepted it.
func (e *Engine) replayCreate(ctx context.Context, op queue.Operation, p queue.CreateEntity) error {
	switch p.Collection {
	case model.CollectionProducts:
		prod, err := e.remote.InsertProduct(ctx, *p.Product)
		if err != nil {
			return err
		}
		e.queue.Remove(ctx, op.ID)
		if prod.ID != "" && prod.ID != p.LocalID {
			e.queue.RewriteProductID(ctx, p.LocalID, prod.ID)
		}
		e.reconciler.ReconcileProduct(ctx, p.LocalID, prod)

	case model.CollectionMovements:
		mv, err := e.remote.InsertMovement(ctx, *p.Movement)
		if err != nil {
			return err
		}
		e.queue.Remove(ctx, op.ID)
		e.reconciler.ReconcileMovement(ctx, p.LocalID, mv)
	}
	return nil
}
