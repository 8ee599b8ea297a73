package model

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Totals holds the computed amounts of a sale.
type Totals struct {
	Gross   decimal.Decimal
	Tax     decimal.Decimal
	Payable decimal.Decimal
	Change  decimal.Decimal
}

// ComputeTotals applies the point-of-sale arithmetic:
//
//	gross   = sum(price * quantity)
//	tax     = gross * taxRate / 100
//	payable = max(0, gross + tax - discount)
//	change  = max(0, given - payable)
func ComputeTotals(items []SaleItem, taxRate, discount, given decimal.Decimal) Totals {
	gross := decimal.Zero
	for _, item := range items {
		gross = gross.Add(item.LineTotal())
	}
	tax := gross.Mul(taxRate).Div(hundred)
	payable := ClampZero(gross.Add(tax).Sub(discount))
	change := ClampZero(given.Sub(payable))

	return Totals{Gross: gross, Tax: tax, Payable: payable, Change: change}
}

// ClampZero returns d, or zero when d is negative.
func ClampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
