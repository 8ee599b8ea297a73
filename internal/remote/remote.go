// Package remote defines the contract of the authoritative backend the
// sync engine replays operations against, plus an in-memory
// implementation used by tests, the scenario harness and demo mode.
package remote

import (
	"context"

	"github.com/roach88/stockpro/internal/model"
)

// Store is the remote system of record, one method per collection
// operation. Every error returned should be (or wrap) an *Error so the
// engine can classify it; anything else is treated as transient.
type Store interface {
	FetchProducts(ctx context.Context) ([]model.Product, error)
	FetchMovements(ctx context.Context) ([]model.StockMovement, error)
	FetchSales(ctx context.Context) ([]model.Sale, error)

	// FetchSettings returns nil, nil when the owner has no settings yet.
	FetchSettings(ctx context.Context, owner string) (*model.Settings, error)

	// InsertProduct creates a product and returns it with its
	// authoritative id.
	InsertProduct(ctx context.Context, f model.ProductFields) (model.Product, error)
	InsertMovement(ctx context.Context, f model.MovementFields) (model.StockMovement, error)
	UpdateProduct(ctx context.Context, id string, patch model.ProductPatch) error
	DeleteProduct(ctx context.Context, id string) error

	// RecordTransaction records a sale atomically and returns its id.
	//
	// Postcondition: on success the remote store has created the sale, its
	// line items, and one "sale" stock movement per line that decrements
	// the product quantity (floored at zero). Callers must not send those
	// movements separately.
	//
	// idempotencyKey identifies the logical transaction across retries; a
	// repeated key returns the id of the already recorded sale.
	RecordTransaction(ctx context.Context, tx model.TransactionPayload, owner, idempotencyKey string) (string, error)

	// UpsertSettings creates or replaces the owner's settings.
	UpsertSettings(ctx context.Context, owner string, s model.Settings) error
}

// Pinger is implemented by stores that can cheaply check reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
