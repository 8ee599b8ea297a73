package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product is a stocked item.
type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Barcode   string          `json:"barcode"`
	Category  string          `json:"category"`
	Price     decimal.Decimal `json:"price"`
	Cost      decimal.Decimal `json:"cost"`
	Quantity  int64           `json:"quantity"`
	MinStock  int64           `json:"min_stock"`
	Unit      string          `json:"unit"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Fields returns the user-editable part of p.
func (p Product) Fields() ProductFields {
	return ProductFields{
		Name:     p.Name,
		Barcode:  p.Barcode,
		Category: p.Category,
		Price:    p.Price,
		Cost:     p.Cost,
		Quantity: p.Quantity,
		MinStock: p.MinStock,
		Unit:     p.Unit,
	}
}

// LowStock reports whether the quantity is at or below the alert threshold.
func (p Product) LowStock() bool {
	return p.Quantity <= p.MinStock
}

// ProductFields is everything needed to create a product. It is the payload
// of a product create intent.
type ProductFields struct {
	Name     string          `json:"name"`
	Barcode  string          `json:"barcode"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Cost     decimal.Decimal `json:"cost"`
	Quantity int64           `json:"quantity"`
	MinStock int64           `json:"min_stock"`
	Unit     string          `json:"unit"`
}

// Validate checks required fields and ranges.
func (f ProductFields) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return invalid("name", "required")
	}
	if f.Price.IsNegative() {
		return invalid("price", "must not be negative")
	}
	if f.Cost.IsNegative() {
		return invalid("cost", "must not be negative")
	}
	if f.Quantity < 0 {
		return invalid("quantity", "must not be negative")
	}
	if f.MinStock < 0 {
		return invalid("min_stock", "must not be negative")
	}
	return nil
}

// NewProduct builds a Product from fields with the given id and timestamp.
func NewProduct(id string, f ProductFields, now time.Time) Product {
	return Product{
		ID:        id,
		Name:      f.Name,
		Barcode:   f.Barcode,
		Category:  f.Category,
		Price:     f.Price,
		Cost:      f.Cost,
		Quantity:  f.Quantity,
		MinStock:  f.MinStock,
		Unit:      f.Unit,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ProductPatch is a partial product update. Nil fields are left unchanged.
type ProductPatch struct {
	Name     *string          `json:"name,omitempty"`
	Barcode  *string          `json:"barcode,omitempty"`
	Category *string          `json:"category,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Cost     *decimal.Decimal `json:"cost,omitempty"`
	Quantity *int64           `json:"quantity,omitempty"`
	MinStock *int64           `json:"min_stock,omitempty"`
	Unit     *string          `json:"unit,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p ProductPatch) IsEmpty() bool {
	return p.Name == nil && p.Barcode == nil && p.Category == nil && p.Price == nil &&
		p.Cost == nil && p.Quantity == nil && p.MinStock == nil && p.Unit == nil
}

// Validate checks the fields that are set.
func (p ProductPatch) Validate() error {
	if p.IsEmpty() {
		return invalid("patch", "no fields to update")
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return invalid("name", "must not be empty")
	}
	if p.Price != nil && p.Price.IsNegative() {
		return invalid("price", "must not be negative")
	}
	if p.Cost != nil && p.Cost.IsNegative() {
		return invalid("cost", "must not be negative")
	}
	if p.Quantity != nil && *p.Quantity < 0 {
		return invalid("quantity", "must not be negative")
	}
	if p.MinStock != nil && *p.MinStock < 0 {
		return invalid("min_stock", "must not be negative")
	}
	return nil
}

// Apply returns prod with the patch applied and UpdatedAt set to now.
func (p ProductPatch) Apply(prod Product, now time.Time) Product {
	if p.Name != nil {
		prod.Name = *p.Name
	}
	if p.Barcode != nil {
		prod.Barcode = *p.Barcode
	}
	if p.Category != nil {
		prod.Category = *p.Category
	}
	if p.Price != nil {
		prod.Price = *p.Price
	}
	if p.Cost != nil {
		prod.Cost = *p.Cost
	}
	if p.Quantity != nil {
		prod.Quantity = *p.Quantity
	}
	if p.MinStock != nil {
		prod.MinStock = *p.MinStock
	}
	if p.Unit != nil {
		prod.Unit = *p.Unit
	}
	prod.UpdatedAt = now
	return prod
}

// QuantityPatch is a patch that only sets the quantity.
func QuantityPatch(q int64) ProductPatch {
	return ProductPatch{Quantity: &q}
}
