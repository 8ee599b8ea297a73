package model

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCategories are offered before the store configures its own.
var DefaultCategories = []string{
	"Électronique", "Alimentation", "Vêtements", "Maison",
	"Beauté", "Sports", "Jouets", "Autres",
}

// DefaultUnits are offered before the store configures its own.
var DefaultUnits = []string{"pièce", "kg", "litre", "mètre", "paquet", "boîte"}

// Settings is the per-owner store configuration.
type Settings struct {
	StoreName  string          `json:"store_name"`
	TaxRate    decimal.Decimal `json:"tax_rate"`
	Address    string          `json:"address,omitempty"`
	Phone      string          `json:"phone,omitempty"`
	Categories []string        `json:"categories"`
	Units      []string        `json:"units"`
}

// DefaultSettings returns the settings used until the owner saves their own.
func DefaultSettings() Settings {
	return Settings{
		StoreName:  "Mon Magasin",
		TaxRate:    decimal.Zero,
		Categories: slices.Clone(DefaultCategories),
		Units:      slices.Clone(DefaultUnits),
	}
}

// Validate checks ranges.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.StoreName) == "" {
		return invalid("store_name", "required")
	}
	if s.TaxRate.IsNegative() || s.TaxRate.GreaterThan(hundred) {
		return invalid("tax_rate", "must be between 0 and 100")
	}
	return nil
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	s.Categories = slices.Clone(s.Categories)
	s.Units = slices.Clone(s.Units)
	return s
}
