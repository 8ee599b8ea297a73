package state

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/stockpro/internal/model"
)

// DefaultRecentMovements is the RecentMovements limit when none is given.
const DefaultRecentMovements = 10

// frenchMonths are the short month labels shown on the sales chart.
var frenchMonths = [12]string{
	"janv.", "févr.", "mars", "avr.", "mai", "juin",
	"juil.", "août", "sept.", "oct.", "nov.", "déc.",
}

// MonthTotal is the sales total of one calendar month.
type MonthTotal struct {
	Year  int             `json:"year"`
	Month time.Month      `json:"month"`
	Label string          `json:"label"`
	Total decimal.Decimal `json:"total"`
}

// LowStockProducts returns the products at or below their alert level.
func (s *State) LowStockProducts() []model.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	var low []model.Product
	for _, p := range s.products {
		if p.LowStock() {
			low = append(low, p)
		}
	}
	return low
}

// InventoryValue is the sum of price times quantity over all products.
func (s *State) InventoryValue() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, p := range s.products {
		total = total.Add(p.Price.Mul(decimal.NewFromInt(p.Quantity)))
	}
	return total
}

// TodaySales is the total of the sales made since local midnight.
func (s *State) TodaySales() decimal.Decimal {
	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, sale := range s.sales {
		if !sale.Date.Before(midnight) {
			total = total.Add(sale.Total)
		}
	}
	return total
}

// MonthlySales returns the sales totals of the last n calendar months,
// oldest first, ending with the current month.
func (s *State) MonthlySales(n int) []MonthTotal {
	if n <= 0 {
		return nil
	}
	now := s.now()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	months := make([]MonthTotal, n)
	for i := range months {
		d := first.AddDate(0, i-(n-1), 0)
		months[i] = MonthTotal{
			Year:  d.Year(),
			Month: d.Month(),
			Label: frenchMonths[d.Month()-1],
			Total: decimal.Zero,
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sale := range s.sales {
		d := sale.Date.In(now.Location())
		for i := range months {
			if months[i].Year == d.Year() && months[i].Month == d.Month() {
				months[i].Total = months[i].Total.Add(sale.Total)
				break
			}
		}
	}
	return months
}

// RecentMovements returns the newest movements, at most limit of them.
// A limit of zero or less means DefaultRecentMovements.
func (s *State) RecentMovements(limit int) []model.StockMovement {
	if limit <= 0 {
		limit = DefaultRecentMovements
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	limit = min(limit, len(s.movements))
	out := make([]model.StockMovement, limit)
	copy(out, s.movements[:limit])
	return out
}
