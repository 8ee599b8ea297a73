package model

import "strings"

// PaymentMethod identifies how a sale was settled.
type PaymentMethod string

const (
	PaymentCash    PaymentMethod = "cash"
	PaymentDMoney  PaymentMethod = "d-money"
	PaymentWaafi   PaymentMethod = "waafi"
	PaymentCacPay  PaymentMethod = "cac-pay"
	PaymentSabaPay PaymentMethod = "saba-pay"
	PaymentCard    PaymentMethod = "card"
)

// Valid reports whether m is one of the accepted payment methods.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentDMoney, PaymentWaafi, PaymentCacPay, PaymentSabaPay, PaymentCard:
		return true
	}
	return false
}

// NormalizePaymentMethod maps free-form input onto a PaymentMethod.
// Legacy "mobile" and "mobile_money" map to d-money; anything unknown
// falls back to cash so a sale is never rejected for its label.
func NormalizePaymentMethod(s string) PaymentMethod {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	if m.Valid() {
		return m
	}
	switch m {
	case "mobile_money", "mobile":
		return PaymentDMoney
	}
	return PaymentCash
}
