package harness

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stockpro/internal/model"
)

// fakeWorld is a fixed final state.
type fakeWorld struct {
	pending     int
	local       []model.Product
	remote      []model.Product
	localSales  int
	remoteSales int
}

func (w fakeWorld) Pending() int { return w.pending }
func (w fakeWorld) LocalProduct(ref string) (model.Product, bool) {
	return findProduct(w.local, ref)
}
func (w fakeWorld) RemoteProduct(ref string) (model.Product, bool) {
	return findProduct(w.remote, ref)
}
func (w fakeWorld) LocalSales() int  { return w.localSales }
func (w fakeWorld) RemoteSales() int { return w.remoteSales }

func sampleCalls() []TraceEvent {
	return []TraceEvent{
		{Seq: 2, Type: EventCall, Action: "InsertProduct", Detail: "Riz => srv-1", Outcome: "ok"},
		{Seq: 3, Type: EventCall, Action: "UpdateProduct", Detail: "srv-1 {quantity=25}", Outcome: "transient 503: busy"},
		{Seq: 5, Type: EventCall, Action: "UpdateProduct", Detail: "srv-1 {quantity=25}", Outcome: "ok"},
		{Seq: 6, Type: EventCall, Action: "RecordTransaction", Detail: "[srv-1x2] => srv-2", Outcome: "ok"},
	}
}

func TestAssertCallContains(t *testing.T) {
	calls := sampleCalls()

	assert.NoError(t, assertCallContains(calls, Assertion{Call: "RecordTransaction", Detail: "srv-1x2"}))
	assert.NoError(t, assertCallContains(calls, Assertion{Call: "InsertProduct"}), "empty detail matches any call")

	err := assertCallContains(calls, Assertion{Call: "InsertProduct", Detail: "Sucre"})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertCallContains, ae.Type)
	assert.Equal(t, "not found", ae.Actual)
	assert.Len(t, ae.Calls, 4)

	assert.Error(t, assertCallContains(calls, Assertion{Call: "DeleteProduct"}))
}

func TestAssertCallOrder(t *testing.T) {
	calls := sampleCalls()

	assert.NoError(t, assertCallOrder(calls, Assertion{Calls: []string{"InsertProduct", "UpdateProduct", "RecordTransaction"}}))
	assert.NoError(t, assertCallOrder(calls, Assertion{Calls: []string{"InsertProduct", "RecordTransaction"}}), "intervening calls allowed")

	err := assertCallOrder(calls, Assertion{Calls: []string{"RecordTransaction", "InsertProduct"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RecordTransaction (pos 4) should be before InsertProduct (pos 1)")

	err = assertCallOrder(calls, Assertion{Calls: []string{"InsertProduct", "DeleteProduct"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing call: DeleteProduct")
}

func TestAssertCallCount(t *testing.T) {
	calls := sampleCalls()

	assert.NoError(t, assertCallCount(calls, Assertion{Call: "UpdateProduct", Count: 2}))
	assert.NoError(t, assertCallCount(calls, Assertion{Call: "DeleteProduct", Count: 0}))

	err := assertCallCount(calls, Assertion{Call: "UpdateProduct", Count: 1})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "1 call(s) to UpdateProduct", ae.Expected)
	assert.Equal(t, "2 call(s)", ae.Actual)
}

func TestAssertProductState(t *testing.T) {
	w := fakeWorld{
		local: []model.Product{{
			ID: "srv-1", Name: "Riz", Barcode: "200000000001",
			Price: decimal.RequireFromString("2500.00"), Quantity: 23, Unit: "sac",
		}},
		remote: []model.Product{{ID: "srv-1", Name: "Riz", Quantity: 21}},
	}

	tests := []struct {
		name    string
		a       Assertion
		wantErr string
	}{
		{"by name", Assertion{Product: "Riz", Expect: map[string]any{"quantity": 23, "unit": "sac"}}, ""},
		{"by barcode", Assertion{Product: "200000000001", Expect: map[string]any{"id": "srv-1"}}, ""},
		{"money compares numerically", Assertion{Product: "srv-1", Expect: map[string]any{"price": "2500"}}, ""},
		{"money from YAML int", Assertion{Product: "srv-1", Expect: map[string]any{"price": 2500}}, ""},
		{"remote copy", Assertion{Product: "Riz", Remote: true, Expect: map[string]any{"quantity": 21}}, ""},
		{"value mismatch", Assertion{Product: "Riz", Expect: map[string]any{"quantity": 20}}, `local product "Riz" field "quantity" = 20`},
		{"remote mismatch", Assertion{Product: "Riz", Remote: true, Expect: map[string]any{"quantity": 23}}, `remote product "Riz"`},
		{"unknown field", Assertion{Product: "Riz", Expect: map[string]any{"colour": "red"}}, `field "colour" is not a product field`},
		{"missing product", Assertion{Product: "Sucre", Expect: map[string]any{"quantity": 1}}, "product not found"},
		{"bad money", Assertion{Product: "Riz", Expect: map[string]any{"price": "cher"}}, `field "price"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertProductState(w, tt.a)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFieldEqual(t *testing.T) {
	assert.True(t, fieldEqual("12.5", decimal.RequireFromString("12.50")))
	assert.True(t, fieldEqual(0, decimal.Zero))
	assert.False(t, fieldEqual("12.49", decimal.RequireFromString("12.50")))
	assert.True(t, fieldEqual(7, int64(7)))
	assert.True(t, fieldEqual("abc", "abc"))
	assert.False(t, fieldEqual("7", int64(8)))
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	for _, c := range sampleCalls() {
		result.AddCallTrace(c.Action, c.Detail, c.Outcome, c.Seq)
	}
	w := fakeWorld{pending: 1, localSales: 2, remoteSales: 1}

	t.Run("all pass", func(t *testing.T) {
		errs := EvaluateAssertions(result, []Assertion{
			{Type: AssertCallCount, Call: "InsertProduct", Count: 1},
			{Type: AssertQueueLength, Count: 1},
			{Type: AssertSaleCount, Count: 2},
			{Type: AssertSaleCount, Remote: true, Count: 1},
		}, w)
		assert.Empty(t, errs)
	})

	t.Run("failures collected", func(t *testing.T) {
		errs := EvaluateAssertions(result, []Assertion{
			{Type: AssertQueueLength, Count: 0},
			{Type: AssertSaleCount, Remote: true, Count: 2},
			{Type: AssertCallOrder, Calls: []string{"InsertProduct"}},
		}, w)
		require.Len(t, errs, 2)
		assert.Contains(t, errs[0], "queue_length")
		assert.Contains(t, errs[1], "sale_count")
	})

	t.Run("unknown type", func(t *testing.T) {
		errs := EvaluateAssertions(result, []Assertion{{Type: "final_state"}}, w)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0], `assertion[0]: unknown assertion type "final_state"`)
	})
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertCallCount,
		Expected: "1 call(s) to RecordTransaction",
		Actual:   "2 call(s)",
		Calls:    sampleCalls()[3:],
	}

	want := "Assertion failed: call_count\n" +
		"  Expected: 1 call(s) to RecordTransaction\n" +
		"  Actual: 2 call(s)\n" +
		"\nBackend calls:\n" +
		"  [1] RecordTransaction [srv-1x2] => srv-2 -> ok\n"
	assert.Equal(t, want, err.Error())
}

func TestResultCalls(t *testing.T) {
	r := NewResult()
	r.AddStepTrace(ActSync, "drained", 0, 1)
	r.AddCallTrace("FetchProducts", "", "ok", 2)
	r.AddStepTrace(ActLoad, "remote", 0, 3)

	calls := r.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "FetchProducts", calls[0].Action)
	assert.True(t, r.Pass)

	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}
