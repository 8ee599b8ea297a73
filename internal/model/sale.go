package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SaleItem is one line of a sale. Name, price and cost are copied from the
// product at sale time so the record stays meaningful after the product
// changes or disappears.
type SaleItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Quantity  int64           `json:"quantity"`
}

// LineTotal is price times quantity.
func (i SaleItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(i.Quantity))
}

// Sale is a completed point-of-sale transaction.
type Sale struct {
	ID            string          `json:"id"`
	Items         []SaleItem      `json:"items"`
	GrossTotal    decimal.Decimal `json:"gross_total"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	TaxTotal      decimal.Decimal `json:"tax_total"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	AmountGiven   decimal.Decimal `json:"amount_given"`
	Change        decimal.Decimal `json:"change"`
	Date          time.Time       `json:"date"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	OwnerID       string          `json:"owner_id,omitempty"`
	StoreName     string          `json:"store_name,omitempty"`
}

// Payload returns the transaction body sent to the remote store.
func (s Sale) Payload() TransactionPayload {
	items := make([]SaleItem, len(s.Items))
	copy(items, s.Items)
	return TransactionPayload{
		Items:         items,
		GrossTotal:    s.GrossTotal,
		TaxRate:       s.TaxRate,
		TaxTotal:      s.TaxTotal,
		Discount:      s.Discount,
		Total:         s.Total,
		AmountGiven:   s.AmountGiven,
		Change:        s.Change,
		PaymentMethod: s.PaymentMethod,
		StoreName:     s.StoreName,
		Date:          s.Date,
	}
}

// TransactionPayload is everything the remote store needs to record a sale
// atomically: the sale row, its line items and one stock decrement per line.
type TransactionPayload struct {
	Items         []SaleItem      `json:"items"`
	GrossTotal    decimal.Decimal `json:"gross_total"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	TaxTotal      decimal.Decimal `json:"tax_total"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	AmountGiven   decimal.Decimal `json:"amount_given"`
	Change        decimal.Decimal `json:"change"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	StoreName     string          `json:"store_name,omitempty"`
	Date          time.Time       `json:"date"`
}

// Validate checks the payload before it is queued or sent.
func (p TransactionPayload) Validate() error {
	if len(p.Items) == 0 {
		return invalid("items", "at least one line item required")
	}
	for _, item := range p.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return invalid("items.product_id", "required")
		}
		if item.Quantity <= 0 {
			return invalid("items.quantity", "must be positive")
		}
		if item.Price.IsNegative() {
			return invalid("items.price", "must not be negative")
		}
	}
	if !p.PaymentMethod.Valid() {
		return invalid("payment_method", "unknown payment method %q", p.PaymentMethod)
	}
	if p.Discount.IsNegative() {
		return invalid("discount", "must not be negative")
	}
	if p.Total.IsNegative() {
		return invalid("total", "must not be negative")
	}
	return nil
}

// ToSale builds the local sale record for the payload.
func (p TransactionPayload) ToSale(id, owner string) Sale {
	items := make([]SaleItem, len(p.Items))
	copy(items, p.Items)
	return Sale{
		ID:            id,
		Items:         items,
		GrossTotal:    p.GrossTotal,
		TaxRate:       p.TaxRate,
		TaxTotal:      p.TaxTotal,
		Discount:      p.Discount,
		Total:         p.Total,
		AmountGiven:   p.AmountGiven,
		Change:        p.Change,
		Date:          p.Date,
		PaymentMethod: p.PaymentMethod,
		OwnerID:       owner,
		StoreName:     p.StoreName,
	}
}

// SaleNote is the note attached to the stock movements of a sale.
func SaleNote(saleID string) string {
	if len(saleID) > 6 {
		saleID = saleID[len(saleID)-6:]
	}
	return "Vente #" + saleID
}

// CartItem is a product line in the cart.
type CartItem struct {
	Product  Product         `json:"product"`
	Quantity int64           `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// SaleItem converts the cart line into a sale line.
func (c CartItem) SaleItem() SaleItem {
	return SaleItem{
		ProductID: c.Product.ID,
		Name:      c.Product.Name,
		Price:     c.Product.Price,
		UnitCost:  c.UnitCost,
		Quantity:  c.Quantity,
	}
}
