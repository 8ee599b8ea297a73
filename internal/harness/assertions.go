package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/roach88/stockpro/internal/model"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Calls    []TraceEvent // backend calls, for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Calls) > 0 {
		fmt.Fprintf(&buf, "\nBackend calls:\n")
		for i, c := range e.Calls {
			fmt.Fprintf(&buf, "  [%d] %s %s -> %s\n", i+1, c.Action, c.Detail, c.Outcome)
		}
	}
	return buf.String()
}

// World is the final state assertions read.
type World interface {
	Pending() int
	LocalProduct(ref string) (model.Product, bool)
	RemoteProduct(ref string) (model.Product, bool)
	LocalSales() int
	RemoteSales() int
}

// Pending returns the queue length.
func (h *Harness) Pending() int { return h.queue.Len() }

// LocalProduct finds a product in local state.
func (h *Harness) LocalProduct(ref string) (model.Product, bool) { return h.findLocal(ref) }

// RemoteProduct finds a product in the backend.
func (h *Harness) RemoteProduct(ref string) (model.Product, bool) { return h.findRemote(ref) }

// LocalSales counts sales in local state.
func (h *Harness) LocalSales() int { return len(h.state.Sales()) }

// RemoteSales counts sales in the backend.
func (h *Harness) RemoteSales() int { return len(h.remote.Snapshot(h.owner).Sales) }

func assertCallContains(calls []TraceEvent, a Assertion) error {
	for _, c := range calls {
		if c.Action == a.Call && strings.Contains(c.Detail, a.Detail) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertCallContains,
		Expected: fmt.Sprintf("call %s with detail containing %q", a.Call, a.Detail),
		Actual:   "not found",
		Calls:    calls,
	}
}

// assertCallOrder checks that methods first appear in the given order.
// Other calls may come in between.
func assertCallOrder(calls []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, c := range calls {
		if _, seen := positions[c.Action]; !seen {
			positions[c.Action] = i + 1
		}
	}

	for _, m := range a.Calls {
		if positions[m] == 0 {
			return &AssertionError{
				Type:     AssertCallOrder,
				Expected: fmt.Sprintf("all calls present: %v", a.Calls),
				Actual:   fmt.Sprintf("missing call: %s", m),
				Calls:    calls,
			}
		}
	}
	for i := 1; i < len(a.Calls); i++ {
		prev, curr := a.Calls[i-1], a.Calls[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertCallOrder,
				Expected: fmt.Sprintf("calls in order: %v", a.Calls),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Calls: calls,
			}
		}
	}
	return nil
}

func assertCallCount(calls []TraceEvent, a Assertion) error {
	count := 0
	for _, c := range calls {
		if c.Action == a.Call {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertCallCount,
			Expected: fmt.Sprintf("%d call(s) to %s", a.Count, a.Call),
			Actual:   fmt.Sprintf("%d call(s)", count),
			Calls:    calls,
		}
	}
	return nil
}

func assertCount(kind string, want, got int) error {
	if want != got {
		return &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("%d", want),
			Actual:   fmt.Sprintf("%d", got),
		}
	}
	return nil
}

func assertProductState(w World, a Assertion) error {
	find, where := w.LocalProduct, "local"
	if a.Remote {
		find, where = w.RemoteProduct, "remote"
	}
	p, ok := find(a.Product)
	if !ok {
		return &AssertionError{
			Type:     AssertProductState,
			Expected: fmt.Sprintf("%s product %q", where, a.Product),
			Actual:   "product not found",
		}
	}

	actual := productFieldMap(p)
	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		got, exists := actual[key]
		if !exists {
			return &AssertionError{
				Type:     AssertProductState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q is not a product field", key),
			}
		}
		if !fieldEqual(a.Expect[key], got) {
			return &AssertionError{
				Type:     AssertProductState,
				Expected: fmt.Sprintf("%s product %q field %q = %v", where, a.Product, key, a.Expect[key]),
				Actual:   fmt.Sprintf("field %q = %v", key, got),
			}
		}
	}
	return nil
}

func productFieldMap(p model.Product) map[string]any {
	return map[string]any{
		"id":        p.ID,
		"name":      p.Name,
		"barcode":   p.Barcode,
		"category":  p.Category,
		"price":     p.Price,
		"cost":      p.Cost,
		"quantity":  p.Quantity,
		"min_stock": p.MinStock,
		"unit":      p.Unit,
	}
}

// fieldEqual compares a YAML value with a product field. Money compares
// numerically so "100" matches 100.00.
func fieldEqual(expected, actual any) bool {
	if d, ok := actual.(decimal.Decimal); ok {
		want, err := decimal.NewFromString(fmt.Sprint(expected))
		return err == nil && want.Equal(d)
	}
	return fmt.Sprint(expected) == fmt.Sprint(actual)
}

// EvaluateAssertions checks every assertion and returns the failure
// messages.
func EvaluateAssertions(result *Result, assertions []Assertion, w World) []string {
	var errs []string
	calls := result.Calls()

	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertCallContains:
			err = assertCallContains(calls, a)
		case AssertCallOrder:
			err = assertCallOrder(calls, a)
		case AssertCallCount:
			err = assertCallCount(calls, a)
		case AssertQueueLength:
			err = assertCount(AssertQueueLength, a.Count, w.Pending())
		case AssertSaleCount:
			got := w.LocalSales()
			if a.Remote {
				got = w.RemoteSales()
			}
			err = assertCount(AssertSaleCount, a.Count, got)
		case AssertProductState:
			err = assertProductState(w, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

