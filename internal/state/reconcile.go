package state

import (
	"context"
	"log/slog"
	"slices"

	"github.com/roach88/stockpro/internal/model"
)

// ReconcileProduct swaps a locally created product for the remote copy.
// Every reference to localID in products, movements and the cart moves
// to the remote id. Sales are left alone; their line items carry their
// own snapshot of the product.
func (s *State) ReconcileProduct(ctx context.Context, localID string, p model.Product) {
	if p.ID == "" {
		p.ID = localID
	}
	s.mu.Lock()
	if i := s.productIndex(localID); i >= 0 {
		// Stock changes made while the create was pending stay local until
		// their own intents replay.
		p.Quantity = s.products[i].Quantity
		s.products[i] = p
	}
	for i := range s.movements {
		if s.movements[i].ProductID == localID {
			s.movements[i].ProductID = p.ID
		}
	}
	for i := range s.cart {
		if s.cart[i].Product.ID == localID {
			s.cart[i].Product.ID = p.ID
		}
	}
	s.mu.Unlock()

	if localID != p.ID {
		slog.Debug("reconciled product", "local_id", localID, "id", p.ID)
	}
	s.persist(ctx, model.CollectionProducts, model.CollectionMovements)
}

// ReconcileMovement gives a locally created movement its remote id.
func (s *State) ReconcileMovement(ctx context.Context, localID string, m model.StockMovement) {
	if m.ID == "" || m.ID == localID {
		return
	}
	s.mu.Lock()
	i := slices.IndexFunc(s.movements, func(mv model.StockMovement) bool { return mv.ID == localID })
	if i >= 0 {
		s.movements[i].ID = m.ID
	}
	s.mu.Unlock()

	if i >= 0 {
		s.persist(ctx, model.CollectionMovements)
	}
}

// ReconcileSale gives a locally recorded sale its remote id.
func (s *State) ReconcileSale(ctx context.Context, localID, remoteID string) {
	if remoteID == "" || remoteID == localID {
		return
	}
	s.mu.Lock()
	i := slices.IndexFunc(s.sales, func(sale model.Sale) bool { return sale.ID == localID })
	if i >= 0 {
		s.sales[i].ID = remoteID
	}
	s.mu.Unlock()

	if i >= 0 {
		s.persist(ctx, model.CollectionSales)
	}
}
