package app

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/stockpro/internal/model"
	"github.com/roach88/stockpro/internal/remote"
)

// DemoOwner is the owner used in demo mode when none is configured.
const DemoOwner = "demo"

// NewDemoRemote returns an in-memory remote store seeded with a small
// catalogue, for trying the tool without a backend.
func NewDemoRemote(owner string) *remote.Memory {
	r := remote.NewMemory()
	now := time.Now().UTC()

	product := func(id, name, barcode, category string, price, cost int64, qty, minStock int64, unit string) model.Product {
		return model.Product{
			ID:        id,
			Name:      name,
			Barcode:   barcode,
			Category:  category,
			Price:     decimal.NewFromInt(price),
			Cost:      decimal.NewFromInt(cost),
			Quantity:  qty,
			MinStock:  minStock,
			Unit:      unit,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	settings := model.DefaultSettings()
	settings.StoreName = "Boutique Démo"
	r.Seed(owner, model.Snapshot{
		Products: []model.Product{
			product("demo-riz", "Riz basmati 5kg", "200000000101", "Alimentation", 1500, 1100, 40, 10, "paquet"),
			product("demo-huile", "Huile de tournesol 1L", "200000000102", "Alimentation", 450, 320, 25, 8, "litre"),
			product("demo-savon", "Savon de Marseille", "200000000103", "Beauté", 200, 120, 6, 10, "pièce"),
			product("demo-piles", "Piles AA x4", "200000000104", "Électronique", 900, 600, 12, 5, "boîte"),
		},
		Settings: settings,
	})
	return r
}
