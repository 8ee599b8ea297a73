package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// parseDecimal reads a money flag. Empty means zero.
func parseDecimal(flag, v string) (decimal.Decimal, error) {
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("--%s: %q is not a number", flag, v)
	}
	return d, nil
}
