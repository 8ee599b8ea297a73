package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MovementType is the direction of a stock movement.
type MovementType string

const (
	MovementIn   MovementType = "in"
	MovementOut  MovementType = "out"
	MovementSale MovementType = "sale"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementIn, MovementOut, MovementSale:
		return true
	}
	return false
}

// ApplyMovement returns the quantity after moving n units in direction t.
// Outbound movements clamp at zero instead of going negative.
func ApplyMovement(quantity int64, t MovementType, n int64) int64 {
	switch t {
	case MovementIn:
		return quantity + n
	case MovementOut, MovementSale:
		if n >= quantity {
			return 0
		}
		return quantity - n
	}
	return quantity
}

// StockMovement records a change in a product's stock.
type StockMovement struct {
	ID            string          `json:"id"`
	ProductID     string          `json:"product_id"`
	ProductName   string          `json:"product_name"`
	Type          MovementType    `json:"type"`
	Quantity      int64           `json:"quantity"`
	Date          time.Time       `json:"date"`
	Note          string          `json:"note,omitempty"`
	PaymentMethod PaymentMethod   `json:"payment_method,omitempty"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
}

// Fields returns the insertable part of m.
func (m StockMovement) Fields() MovementFields {
	return MovementFields{
		ProductID:     m.ProductID,
		ProductName:   m.ProductName,
		Type:          m.Type,
		Quantity:      m.Quantity,
		Note:          m.Note,
		PaymentMethod: m.PaymentMethod,
		UnitCost:      m.UnitCost,
	}
}

// MovementFields is the payload of a movement create intent.
type MovementFields struct {
	ProductID     string          `json:"product_id"`
	ProductName   string          `json:"product_name"`
	Type          MovementType    `json:"type"`
	Quantity      int64           `json:"quantity"`
	Note          string          `json:"note,omitempty"`
	PaymentMethod PaymentMethod   `json:"payment_method,omitempty"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
}

// Validate checks required fields and enumerations.
func (f MovementFields) Validate() error {
	if strings.TrimSpace(f.ProductID) == "" {
		return invalid("product_id", "required")
	}
	if !f.Type.Valid() {
		return invalid("type", "unknown movement type %q", f.Type)
	}
	if f.Quantity <= 0 {
		return invalid("quantity", "must be positive")
	}
	if f.PaymentMethod != "" && !f.PaymentMethod.Valid() {
		return invalid("payment_method", "unknown payment method %q", f.PaymentMethod)
	}
	if f.UnitCost.IsNegative() {
		return invalid("unit_cost", "must not be negative")
	}
	return nil
}

// NewMovement builds a StockMovement from fields.
func NewMovement(id string, f MovementFields, at time.Time) StockMovement {
	return StockMovement{
		ID:            id,
		ProductID:     f.ProductID,
		ProductName:   f.ProductName,
		Type:          f.Type,
		Quantity:      f.Quantity,
		Date:          at,
		Note:          f.Note,
		PaymentMethod: f.PaymentMethod,
		UnitCost:      f.UnitCost,
	}
}
