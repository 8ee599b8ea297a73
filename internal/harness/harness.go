package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/stockpro/internal/cache"
	"github.com/roach88/stockpro/internal/connectivity"
	"github.com/roach88/stockpro/internal/engine"
	"github.com/roach88/stockpro/internal/model"
	"github.com/roach88/stockpro/internal/queue"
	"github.com/roach88/stockpro/internal/remote"
	"github.com/roach88/stockpro/internal/state"
	"github.com/roach88/stockpro/internal/store"
	"github.com/roach88/stockpro/internal/testutil"
)

// Harness is one scenario's world: a local store, the queue, state and
// engine built on it, and an in-memory backend.
type Harness struct {
	ctx     context.Context
	owner   string
	ids     testutil.IDs
	clock   *testutil.WallClock
	seq     *testutil.DeterministicClock
	kv      *store.Memory
	remote  *remote.Memory
	monitor *connectivity.Monitor
	queue   *queue.Queue
	state   *state.State
	engine  *engine.Engine
}

// Run executes a scenario in a fresh world and returns its trace.
//
// Execution flow:
//  1. seed the in-memory backend and load local state from it
//  2. run every step, recording its outcome and the backend calls it made
//  3. check each step's expect clause
//  4. evaluate the assertions against the trace and final state
//
// An error is returned only when the scenario itself is unusable (bad
// arguments, unknown product references in seed data).
func Run(scenario *Scenario) (*Result, error) {
	h, err := newHarness(context.Background(), scenario)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		outcome, err := h.execute(step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Invoke, err)
		}
		calls := h.drainCalls()
		pending := h.queue.Len()

		result.AddStepTrace(step.Invoke, outcome, pending, h.seq.Next())
		for _, c := range calls {
			callOutcome := "ok"
			if c.Err != "" {
				callOutcome = c.Err
			}
			result.AddCallTrace(c.Method, c.Subject, callOutcome, h.seq.Next())
		}

		if exp := step.Expect; exp != nil {
			if exp.Outcome != outcome {
				result.AddError(fmt.Sprintf("step %d (%s): expected outcome %q, got %q", i, step.Invoke, exp.Outcome, outcome))
			}
			if exp.Pending != nil && *exp.Pending != pending {
				result.AddError(fmt.Sprintf("step %d (%s): expected %d pending, got %d", i, step.Invoke, *exp.Pending, pending))
			}
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions, h) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(ctx context.Context, s *Scenario) (*Harness, error) {
	ids := testutil.NewIDs()
	clock := testutil.NewWallClock(time.Time{})
	h := &Harness{
		ctx:     ctx,
		owner:   s.Owner,
		ids:     ids,
		clock:   clock,
		seq:     testutil.NewDeterministicClock(),
		kv:      store.NewMemory(),
		remote:  remote.NewMemory(remote.WithIDs(ids.Remote), remote.WithClock(clock.Now)),
		monitor: connectivity.NewMonitor(true),
	}

	snap, err := s.Seed.snapshot(clock.Now())
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	h.remote.Seed(s.Owner, snap)

	h.open()
	if _, err := h.state.Load(ctx); err != nil {
		return nil, fmt.Errorf("initial load: %w", err)
	}
	h.remote.ResetCalls()
	return h, nil
}

// open builds queue, cache, state and engine over the local store, as an
// application start does.
func (h *Harness) open() {
	h.queue = queue.Open(h.ctx, h.kv,
		queue.WithIDGenerator(h.ids.Ops),
		queue.WithNow(h.clock.Now))
	h.state = state.New(h.queue, h.remote, cache.New(h.kv),
		state.WithOwner(h.owner),
		state.WithConnectivity(h.monitor),
		state.WithIDGenerator(h.ids.Local),
		state.WithBarcodes(h.ids.Barcodes),
		state.WithNow(h.clock.Now))
	h.engine = engine.New(h.queue, h.remote, h.state,
		engine.WithOwner(h.owner),
		engine.WithConnectivity(h.monitor),
		engine.WithNow(h.clock.Now))
}

func (h *Harness) drainCalls() []remote.Call {
	calls := h.remote.Calls()
	h.remote.ResetCalls()
	return calls
}

// execute runs one step and returns its outcome label.
func (h *Harness) execute(step Step) (string, error) {
	a := args(step.Args)
	ctx := h.ctx

	switch step.Invoke {
	case ActGoOffline:
		h.remote.SetOffline(true)
		h.monitor.SetOnline(false)
		return "ok", nil

	case ActGoOnline:
		h.remote.SetOffline(false)
		h.monitor.SetOnline(true)
		return "ok", nil

	case ActLoseConnection:
		h.remote.SetOffline(true)
		return "ok", nil

	case ActFailNext, ActFailAfterApply:
		method, err := a.required("method")
		if err != nil {
			return "", err
		}
		class := a.stringOr("class", string(remote.ClassTransient))
		rerr := remote.NewError(remote.Class(class), a.stringOr("code", ""), "%s", a.stringOr("message", "scripted failure"))
		if step.Invoke == ActFailNext {
			h.remote.FailNext(method, rerr)
		} else {
			h.remote.FailAfterApply(method, rerr)
		}
		return "ok", nil

	case ActAdvanceClock:
		d, err := time.ParseDuration(a.stringOr("by", "0s"))
		if err != nil {
			return "", fmt.Errorf("by: %w", err)
		}
		h.clock.Advance(d)
		return "ok", nil

	case ActCreateProduct:
		f, err := productFields(a)
		if err != nil {
			return "", err
		}
		_, err = h.state.CreateProduct(ctx, f)
		return errorLabel(err), nil

	case ActUpdateProduct:
		id, err := h.productID(a)
		if err != nil {
			return "", err
		}
		patch, err := productPatch(a)
		if err != nil {
			return "", err
		}
		_, err = h.state.UpdateProduct(ctx, id, patch)
		return errorLabel(err), nil

	case ActDeleteProduct:
		id, err := h.productID(a)
		if err != nil {
			return "", err
		}
		return errorLabel(h.state.DeleteProduct(ctx, id)), nil

	case ActRecordMovement:
		id, err := h.productID(a)
		if err != nil {
			return "", err
		}
		qty, _, err := a.int("quantity")
		if err != nil {
			return "", err
		}
		t := model.MovementType(a.stringOr("type", string(model.MovementIn)))
		_, err = h.state.RecordStockMovement(ctx, id, t, qty, a.stringOr("note", ""))
		return errorLabel(err), nil

	case ActAddToCart:
		ref, err := a.required("product")
		if err != nil {
			return "", err
		}
		p, ok := h.findLocal(ref)
		if !ok {
			return errorLabel(state.ErrProductNotFound), nil
		}
		qty, set, err := a.int("quantity")
		if err != nil {
			return "", err
		}
		if !set {
			qty = 1
		}
		return errorLabel(h.state.AddToCart(p, qty)), nil

	case ActRecordSale:
		return h.recordSale(a)

	case ActUpdateSettings:
		st := h.state.Settings()
		if v, ok := a.string("store_name"); ok {
			st.StoreName = v
		}
		if v, ok := a.string("address"); ok {
			st.Address = v
		}
		if v, ok := a.string("phone"); ok {
			st.Phone = v
		}
		rate, set, err := a.decimal("tax_rate")
		if err != nil {
			return "", err
		}
		if set {
			st.TaxRate = rate
		}
		return errorLabel(h.state.UpdateSettings(ctx, st)), nil

	case ActSync:
		rep := h.engine.Drain(ctx)
		return string(rep.StopReason), nil

	case ActLoad:
		return h.load()

	case ActRestart:
		h.open()
		return h.load()
	}
	return "", fmt.Errorf("unknown action %q", step.Invoke)
}

func (h *Harness) load() (string, error) {
	src, err := h.state.Load(h.ctx)
	if err != nil {
		return errorLabel(err), nil
	}
	return string(src), nil
}

func (h *Harness) recordSale(a args) (string, error) {
	discount, _, err := a.decimal("discount")
	if err != nil {
		return "", err
	}
	given, set, err := a.decimal("given")
	if err != nil {
		return "", err
	}
	if !set {
		var items []model.SaleItem
		for _, c := range h.state.Cart() {
			items = append(items, c.SaleItem())
		}
		given = model.ComputeTotals(items, h.state.Settings().TaxRate, discount, decimal.Zero).Payable
	}
	_, err = h.state.RecordSale(h.ctx, a.stringOr("payment", string(model.PaymentCash)), discount, given)
	return errorLabel(err), nil
}

// productID resolves the "product" argument. A reference that matches
// nothing is passed through so the state reports not found.
func (h *Harness) productID(a args) (string, error) {
	ref, err := a.required("product")
	if err != nil {
		return "", err
	}
	if p, ok := h.findLocal(ref); ok {
		return p.ID, nil
	}
	return ref, nil
}

func (h *Harness) findLocal(ref string) (model.Product, bool) {
	return findProduct(h.state.Products(), ref)
}

func (h *Harness) findRemote(ref string) (model.Product, bool) {
	return findProduct(h.remote.Snapshot(h.owner).Products, ref)
}

// findProduct matches ref against id, then barcode, then name.
func findProduct(products []model.Product, ref string) (model.Product, bool) {
	for _, match := range []func(model.Product) bool{
		func(p model.Product) bool { return p.ID == ref },
		func(p model.Product) bool { return p.Barcode != "" && p.Barcode == ref },
		func(p model.Product) bool { return p.Name == ref },
	} {
		if i := slices.IndexFunc(products, match); i >= 0 {
			return products[i], true
		}
	}
	return model.Product{}, false
}

// errorLabel names the outcome of a state operation.
func errorLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, state.ErrProductNotFound):
		return "not_found"
	case errors.Is(err, state.ErrDuplicateBarcode):
		return "duplicate_barcode"
	case errors.Is(err, state.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, state.ErrNegativeDiscount):
		return "negative_discount"
	case errors.Is(err, state.ErrInsufficientPayment):
		return "insufficient_payment"
	case errors.Is(err, state.ErrInvalidQuantity):
		return "invalid_quantity"
	case model.IsValidation(err):
		return "validation"
	}
	return "error"
}

func productFields(a args) (model.ProductFields, error) {
	f := model.ProductFields{
		Name:     a.stringOr("name", ""),
		Barcode:  a.stringOr("barcode", ""),
		Category: a.stringOr("category", ""),
		Unit:     a.stringOr("unit", ""),
	}
	var err error
	if f.Price, _, err = a.decimal("price"); err != nil {
		return f, err
	}
	if f.Cost, _, err = a.decimal("cost"); err != nil {
		return f, err
	}
	if f.Quantity, _, err = a.int("quantity"); err != nil {
		return f, err
	}
	if f.MinStock, _, err = a.int("min_stock"); err != nil {
		return f, err
	}
	return f, nil
}

func productPatch(a args) (model.ProductPatch, error) {
	var p model.ProductPatch
	for key, dst := range map[string]**string{
		"name": &p.Name, "barcode": &p.Barcode, "category": &p.Category, "unit": &p.Unit,
	} {
		if v, ok := a.string(key); ok {
			*dst = &v
		}
	}
	for key, dst := range map[string]**decimal.Decimal{"price": &p.Price, "cost": &p.Cost} {
		d, set, err := a.decimal(key)
		if err != nil {
			return p, err
		}
		if set {
			*dst = &d
		}
	}
	for key, dst := range map[string]**int64{"quantity": &p.Quantity, "min_stock": &p.MinStock} {
		n, set, err := a.int(key)
		if err != nil {
			return p, err
		}
		if set {
			*dst = &n
		}
	}
	return p, nil
}

func (s Seed) snapshot(now time.Time) (model.Snapshot, error) {
	snap := model.Snapshot{Settings: model.DefaultSettings()}
	if s.Settings != nil {
		snap.Settings.StoreName = s.Settings.StoreName
		if s.Settings.TaxRate != "" {
			rate, err := decimal.NewFromString(s.Settings.TaxRate)
			if err != nil {
				return snap, fmt.Errorf("settings.tax_rate: %w", err)
			}
			snap.Settings.TaxRate = rate
		}
	}
	for _, sp := range s.Products {
		f := model.ProductFields{
			Name:     sp.Name,
			Barcode:  sp.Barcode,
			Category: sp.Category,
			Quantity: sp.Quantity,
			MinStock: sp.MinStock,
			Unit:     sp.Unit,
		}
		var err error
		if f.Price, err = parseMoney(sp.Price); err != nil {
			return snap, fmt.Errorf("product %s price: %w", sp.ID, err)
		}
		if f.Cost, err = parseMoney(sp.Cost); err != nil {
			return snap, fmt.Errorf("product %s cost: %w", sp.ID, err)
		}
		snap.Products = append(snap.Products, model.NewProduct(sp.ID, f, now))
	}
	return snap, nil
}

func parseMoney(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
