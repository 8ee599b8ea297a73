package state

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/roach88/stockpro/internal/model"
)

// AddToCart adds qty units of p to the cart, merging with an existing line
// for the same product. The unit cost is captured from the product now.
func (s *State) AddToCart(p model.Product, qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.cartIndex(p.ID); i >= 0 {
		s.cart[i].Quantity += qty
		return nil
	}
	s.cart = append(s.cart, model.CartItem{Product: p, Quantity: qty, UnitCost: p.Cost})
	return nil
}

// RemoveFromCart drops the line for productID, if any.
func (s *State) RemoveFromCart(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart = slices.DeleteFunc(s.cart, func(c model.CartItem) bool { return c.Product.ID == productID })
}

// UpdateCartQuantity sets the quantity of a line. Zero or less removes it.
func (s *State) UpdateCartQuantity(productID string, qty int64) {
	if qty <= 0 {
		s.RemoveFromCart(productID)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.cartIndex(productID); i >= 0 {
		s.cart[i].Quantity = qty
	}
}

func (s *State) ClearCart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart = nil
}

// Cart returns a copy of the cart lines.
func (s *State) Cart() []model.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.cart)
}

// CartTotal is the gross total of the cart, before tax and discount.
func (s *State) CartTotal() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, line := range s.cart {
		total = total.Add(line.SaleItem().LineTotal())
	}
	return total
}

// Caller holds s.mu.
func (s *State) cartIndex(productID string) int {
	return slices.IndexFunc(s.cart, func(c model.CartItem) bool { return c.Product.ID == productID })
}
