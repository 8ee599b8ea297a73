package harness

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// args are step arguments as decoded from YAML: strings, ints, floats and
// bools.
type args map[string]any

func (a args) string(key string) (string, bool) {
	v, ok := a[key]
	if !ok {
		return "", false
	}
	return fmt.Sprint(v), true
}

func (a args) stringOr(key, def string) string {
	if v, ok := a.string(key); ok {
		return v
	}
	return def
}

func (a args) required(key string) (string, error) {
	v, ok := a.string(key)
	if !ok || v == "" {
		return "", fmt.Errorf("argument %q is required", key)
	}
	return v, nil
}

func (a args) int(key string) (int64, bool, error) {
	v, ok := a[key]
	if !ok {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return int64(n), true, nil
	case int64:
		return n, true, nil
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true, nil
		}
	}
	return 0, false, fmt.Errorf("argument %q: %v is not an integer", key, v)
}

// decimal accepts money written as a string ("12.50") or a YAML number.
func (a args) decimal(key string) (decimal.Decimal, bool, error) {
	v, ok := a[key]
	if !ok {
		return decimal.Zero, false, nil
	}
	switch n := v.(type) {
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.Zero, false, fmt.Errorf("argument %q: %w", key, err)
		}
		return d, true, nil
	case int:
		return decimal.NewFromInt(int64(n)), true, nil
	case float64:
		return decimal.NewFromFloat(n), true, nil
	}
	return decimal.Zero, false, fmt.Errorf("argument %q: %v is not a number", key, v)
}
