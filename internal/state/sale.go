package state

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/roach88/stockpro/internal/model"
	"github.com/roach88/stockpro/internal/queue"
)

// RecordSale turns the cart into a sale in one state transition: the sale
// and one sale movement per line are prepended, stock is decremented
// (floored at zero) and the cart is cleared. The sale is then recorded
// remotely as a single transaction, or queued as a single intent. The
// remote transaction creates the stock movements itself, so none are
// ever queued for a sale.
func (s *State) RecordSale(ctx context.Context, paymentMethod string, discount, amountGiven decimal.Decimal) (model.Sale, error) {
	if discount.IsNegative() {
		return model.Sale{}, ErrNegativeDiscount
	}

	s.mu.Lock()
	if len(s.cart) == 0 {
		s.mu.Unlock()
		return model.Sale{}, ErrEmptyCart
	}

	items := make([]model.SaleItem, len(s.cart))
	for i, line := range s.cart {
		items[i] = line.SaleItem()
	}
	totals := model.ComputeTotals(items, s.settings.TaxRate, discount, amountGiven)
	if amountGiven.LessThan(totals.Payable) {
		s.mu.Unlock()
		return model.Sale{}, fmt.Errorf("%w: due %s, given %s", ErrInsufficientPayment, totals.Payable, amountGiven)
	}

	now := s.now()
	payload := model.TransactionPayload{
		Items:         items,
		GrossTotal:    totals.Gross,
		TaxRate:       s.settings.TaxRate,
		TaxTotal:      totals.Tax,
		Discount:      discount,
		Total:         totals.Payable,
		AmountGiven:   amountGiven,
		Change:        totals.Change,
		PaymentMethod: model.NormalizePaymentMethod(paymentMethod),
		StoreName:     s.settings.StoreName,
		Date:          now,
	}
	if err := payload.Validate(); err != nil {
		s.mu.Unlock()
		return model.Sale{}, err
	}

	localID := s.ids.NewID()
	sale := payload.ToSale(localID, s.owner)
	movements := make([]model.StockMovement, 0, len(items))
	for _, item := range items {
		if i := s.productIndex(item.ProductID); i >= 0 {
			newQty := model.ApplyMovement(s.products[i].Quantity, model.MovementSale, item.Quantity)
			s.products[i] = model.QuantityPatch(newQty).Apply(s.products[i], now)
		}
		movements = append(movements, model.NewMovement(s.ids.NewID(), model.MovementFields{
			ProductID:     item.ProductID,
			ProductName:   item.Name,
			Type:          model.MovementSale,
			Quantity:      item.Quantity,
			Note:          model.SaleNote(localID),
			PaymentMethod: payload.PaymentMethod,
			UnitCost:      item.UnitCost,
		}, now))
	}
	s.movements = slices.Insert(s.movements, 0, movements...)
	s.sales = slices.Insert(s.sales, 0, sale)
	s.cart = nil
	s.mu.Unlock()

	s.persist(ctx, model.CollectionProducts, model.CollectionMovements, model.CollectionSales)

	intent := queue.RecordTransaction{LocalID: localID, Transaction: payload}
	key, err := queue.Fingerprint(intent)
	if err != nil {
		slog.Error("fingerprint transaction", "sale", localID, "error", err)
	}
	s.dispatch(ctx, step{
		payload: intent,
		send: func(ctx context.Context) error {
			id, err := s.remote.RecordTransaction(ctx, payload, s.owner, key)
			if err != nil {
				return err
			}
			s.ReconcileSale(ctx, localID, id)
			if id != "" {
				sale.ID = id
			}
			return nil
		},
	})
	return sale, nil
}
