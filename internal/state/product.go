package state

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/stockpro/internal/model"
	"github.com/roach88/stockpro/internal/queue"
)

// maxBarcodeTries bounds the search for an unused generated barcode.
const maxBarcodeTries = 10

// CreateProduct adds a product under a local id and sends or queues its
// creation. The returned product carries the remote id when the direct
// insert succeeded.
func (s *State) CreateProduct(ctx context.Context, f model.ProductFields) (model.Product, error) {
	if err := f.Validate(); err != nil {
		return model.Product{}, err
	}

	s.mu.Lock()
	if f.Barcode == "" {
		for i := 0; i < maxBarcodeTries; i++ {
			f.Barcode = s.barcode()
			if !s.barcodeTaken(f.Barcode, "") {
				break
			}
		}
	}
	if s.barcodeTaken(f.Barcode, "") {
		s.mu.Unlock()
		return model.Product{}, fmt.Errorf("%w: %s", ErrDuplicateBarcode, f.Barcode)
	}
	localID := s.ids.NewID()
	prod := model.NewProduct(localID, f, s.now())
	s.products = slices.Insert(s.products, 0, prod)
	s.mu.Unlock()

	s.persist(ctx, model.CollectionProducts)

	finalID := localID
	s.dispatch(ctx, step{
		payload: queue.CreateEntity{Collection: model.CollectionProducts, LocalID: localID, Product: &f},
		send: func(ctx context.Context) error {
			remote, err := s.remote.InsertProduct(ctx, f)
			if err != nil {
				return err
			}
			if remote.ID != "" && remote.ID != localID {
				s.queue.RewriteProductID(ctx, localID, remote.ID)
				finalID = remote.ID
			}
			s.ReconcileProduct(ctx, localID, remote)
			return nil
		},
	})

	if p, ok := s.Product(finalID); ok {
		return p, nil
	}
	return prod, nil
}

// UpdateProduct applies patch locally and sends or queues it.
func (s *State) UpdateProduct(ctx context.Context, id string, patch model.ProductPatch) (model.Product, error) {
	if err := patch.Validate(); err != nil {
		return model.Product{}, err
	}

	s.mu.Lock()
	i := s.productIndex(id)
	if i < 0 {
		s.mu.Unlock()
		return model.Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	if patch.Barcode != nil && s.barcodeTaken(*patch.Barcode, id) {
		s.mu.Unlock()
		return model.Product{}, fmt.Errorf("%w: %s", ErrDuplicateBarcode, *patch.Barcode)
	}
	updated := patch.Apply(s.products[i], s.now())
	s.products[i] = updated
	if j := s.cartIndex(id); j >= 0 {
		s.cart[j].Product = updated
	}
	s.mu.Unlock()

	s.persist(ctx, model.CollectionProducts)
	s.dispatch(ctx, updateStep(s, id, patch))
	return updated, nil
}

// DeleteProduct removes a product locally, drops it from the cart, and
// sends or queues the deletion. Movements and sales keep their snapshot
// of it.
func (s *State) DeleteProduct(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.productIndex(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	s.products = slices.Delete(s.products, i, i+1)
	s.cart = slices.DeleteFunc(s.cart, func(c model.CartItem) bool { return c.Product.ID == id })
	s.mu.Unlock()

	s.persist(ctx, model.CollectionProducts)
	s.dispatch(ctx, step{
		payload: queue.DeleteEntity{Collection: model.CollectionProducts, ID: id},
		send: func(ctx context.Context) error {
			return s.remote.DeleteProduct(ctx, id)
		},
	})
	return nil
}

func updateStep(s *State, id string, patch model.ProductPatch) step {
	return step{
		payload: queue.UpdateEntity{Collection: model.CollectionProducts, ID: id, Patch: patch},
		send: func(ctx context.Context) error {
			return s.remote.UpdateProduct(ctx, id, patch)
		},
	}
}

// RecordStockMovement moves qty units of a product in or out. Outbound
// movements floor the stock at zero. The movement records the product's
// current cost.
func (s *State) RecordStockMovement(ctx context.Context, productID string, t model.MovementType, qty int64, note string) (model.StockMovement, error) {
	if qty <= 0 {
		return model.StockMovement{}, ErrInvalidQuantity
	}

	s.mu.Lock()
	i := s.productIndex(productID)
	if i < 0 {
		s.mu.Unlock()
		return model.StockMovement{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	prod := s.products[i]
	f := model.MovementFields{
		ProductID:   prod.ID,
		ProductName: prod.Name,
		Type:        t,
		Quantity:    qty,
		Note:        note,
		UnitCost:    prod.Cost,
	}
	if err := f.Validate(); err != nil {
		s.mu.Unlock()
		return model.StockMovement{}, err
	}

	now := s.now()
	localID := s.ids.NewID()
	mv := model.NewMovement(localID, f, now)
	newQty := model.ApplyMovement(prod.Quantity, t, qty)
	qtyPatch := model.QuantityPatch(newQty)

	s.products[i] = qtyPatch.Apply(prod, now)
	if j := s.cartIndex(productID); j >= 0 {
		s.cart[j].Product = s.products[i]
	}
	s.movements = slices.Insert(s.movements, 0, mv)
	s.mu.Unlock()

	s.persist(ctx, model.CollectionProducts, model.CollectionMovements)

	finalID := localID
	s.dispatch(ctx,
		step{
			payload: queue.CreateEntity{Collection: model.CollectionMovements, LocalID: localID, Movement: &f},
			send: func(ctx context.Context) error {
				remote, err := s.remote.InsertMovement(ctx, f)
				if err != nil {
					return err
				}
				if remote.ID != "" {
					finalID = remote.ID
				}
				s.ReconcileMovement(ctx, localID, remote)
				return nil
			},
		},
		updateStep(s, productID, qtyPatch),
	)

	mv.ID = finalID
	return mv, nil
}

// UpdateSettings replaces the store settings and sends or queues them.
func (s *State) UpdateSettings(ctx context.Context, settings model.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	settings = settings.Clone()

	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()

	s.persist(ctx, model.CollectionSettings)
	s.dispatch(ctx, step{
		payload: queue.UpdateSettings{Settings: settings},
		send: func(ctx context.Context) error {
			return s.remote.UpsertSettings(ctx, s.owner, settings)
		},
	})
	return nil
}
