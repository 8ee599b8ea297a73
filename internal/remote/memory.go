package remote

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/roach88/stockpro/internal/ident"
	"github.com/roach88/stockpro/internal/model"
)

// Call is one entry of the Memory call log.
type Call struct {
	Method  string
	Subject string
	Err     string
}

func (c Call) String() string {
	s := c.Method
	if c.Subject != "" {
		s += " " + c.Subject
	}
	if c.Err != "" {
		s += " -> " + c.Err
	}
	return s
}

type scripted struct {
	method     string
	err        error
	afterApply bool
}

// Memory is an in-memory Store with the same observable semantics as the
// real backend: server-assigned ids, barcode uniqueness, foreign keys on
// product references, atomic transactions with idempotency keys.
//
// Failures are scripted per method with FailNext and consumed in order.
type Memory struct {
	mu          sync.Mutex
	ids         ident.Generator
	now         func() time.Time
	products    []model.Product
	movements   []model.StockMovement
	sales       []model.Sale
	settings    map[string]model.Settings
	idempotency map[string]string
	script      []scripted
	offline     bool
	calls       []Call
}

var (
	_ Store  = (*Memory)(nil)
	_ Pinger = (*Memory)(nil)
)

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithIDs sets the generator for server-assigned ids.
func WithIDs(g ident.Generator) MemoryOption {
	return func(m *Memory) { m.ids = g }
}

// WithClock sets the clock used for created/updated timestamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory returns an empty in-memory remote store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		ids:         ident.NewSequenceGenerator("srv"),
		now:         time.Now,
		settings:    make(map[string]model.Settings),
		idempotency: make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Seed replaces the stored collections with snap (settings under owner).
func (m *Memory) Seed(owner string, snap model.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = slices.Clone(snap.Products)
	m.movements = slices.Clone(snap.Movements)
	m.sales = slices.Clone(snap.Sales)
	if owner != "" {
		m.settings[owner] = snap.Settings.Clone()
	}
}

// Snapshot returns a copy of the stored collections.
func (m *Memory) Snapshot(owner string) model.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := model.Snapshot{
		Products:  slices.Clone(m.products),
		Movements: slices.Clone(m.movements),
		Sales:     slices.Clone(m.sales),
	}
	if s, ok := m.settings[owner]; ok {
		snap.Settings = s.Clone()
	}
	return snap
}

// FailNext makes the next call to method fail with err. Use "*" to match
// any method. Multiple calls queue up in order.
func (m *Memory) FailNext(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scripted{method: method, err: err})
}

// FailAfterApply makes the next call to method perform its write and then
// report err, as when a response is lost after the backend committed.
func (m *Memory) FailAfterApply(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scripted{method: method, err: err, afterApply: true})
}

// SetOffline makes every call fail with an offline error until reset.
func (m *Memory) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
}

// Calls returns the call log.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// ResetCalls clears the call log.
func (m *Memory) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// begin checks context, offline state and the failure script. It returns
// the error to report before applying (pre) or after applying (post).
// Caller holds m.mu.
func (m *Memory) begin(ctx context.Context, method string) (pre, post error) {
	if err := ctx.Err(); err != nil {
		return err, nil
	}
	if m.offline {
		return NewError(ClassOffline, "", "network unreachable"), nil
	}
	for i, s := range m.script {
		if s.method == method || s.method == "*" {
			m.script = slices.Delete(m.script, i, i+1)
			if s.afterApply {
				return nil, s.err
			}
			return s.err, nil
		}
	}
	return nil, nil
}

func (m *Memory) record(method, subject string, err error) {
	c := Call{Method: method, Subject: subject}
	if err != nil {
		c.Err = err.Error()
	}
	m.calls = append(m.calls, c)
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pre, _ := m.begin(ctx, "Ping")
	return pre
}

func (m *Memory) FetchProducts(ctx context.Context) ([]model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pre, _ := m.begin(ctx, "FetchProducts"); pre != nil {
		m.record("FetchProducts", "", pre)
		return nil, pre
	}
	m.record("FetchProducts", "", nil)
	return slices.Clone(m.products), nil
}

func (m *Memory) FetchMovements(ctx context.Context) ([]model.StockMovement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pre, _ := m.begin(ctx, "FetchMovements"); pre != nil {
		m.record("FetchMovements", "", pre)
		return nil, pre
	}
	m.record("FetchMovements", "", nil)
	return slices.Clone(m.movements), nil
}

func (m *Memory) FetchSales(ctx context.Context) ([]model.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pre, _ := m.begin(ctx, "FetchSales"); pre != nil {
		m.record("FetchSales", "", pre)
		return nil, pre
	}
	m.record("FetchSales", "", nil)
	return slices.Clone(m.sales), nil
}

func (m *Memory) FetchSettings(ctx context.Context, owner string) (*model.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pre, _ := m.begin(ctx, "FetchSettings"); pre != nil {
		m.record("FetchSettings", owner, pre)
		return nil, pre
	}
	m.record("FetchSettings", owner, nil)
	s, ok := m.settings[owner]
	if !ok {
		return nil, nil
	}
	s = s.Clone()
	return &s, nil
}

func (m *Memory) InsertProduct(ctx context.Context, f model.ProductFields) (model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pre, post := m.begin(ctx, "InsertProduct")
	if pre == nil {
		pre = m.checkBarcode(f.Barcode, "")
	}
	if pre != nil {
		m.record("InsertProduct", f.Name, pre)
		return model.Product{}, pre
	}

	p := model.NewProduct(m.ids.NewID(), f, m.now().UTC())
	m.products = append([]model.Product{p}, m.products...)
	m.record("InsertProduct", f.Name+" => "+p.ID, post)
	if post != nil {
		return model.Product{}, post
	}
	return p, nil
}

func (m *Memory) InsertMovement(ctx context.Context, f model.MovementFields) (model.StockMovement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pre, post := m.begin(ctx, "InsertMovement")
	if pre == nil && m.productIndex(f.ProductID) < 0 {
		pre = NewError(ClassConstraint, "23503", "stock_movements.product_id %s not present in products", f.ProductID)
	}
	subject := fmt.Sprintf("%s %s x%d", f.ProductID, f.Type, f.Quantity)
	if pre != nil {
		m.record("InsertMovement", subject, pre)
		return model.StockMovement{}, pre
	}

	mv := model.NewMovement(m.ids.NewID(), f, m.now().UTC())
	m.movements = append([]model.StockMovement{mv}, m.movements...)
	m.record("InsertMovement", subject+" => "+mv.ID, post)
	if post != nil {
		return model.StockMovement{}, post
	}
	return mv, nil
}

func (m *Memory) UpdateProduct(ctx context.Context, id string, patch model.ProductPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pre, post := m.begin(ctx, "UpdateProduct")
	if pre == nil && patch.Barcode != nil {
		pre = m.checkBarcode(*patch.Barcode, id)
	}
	subject := id + " " + describePatch(patch)
	if pre != nil {
		m.record("UpdateProduct", subject, pre)
		return pre
	}
	// Like a filtered UPDATE, a missing row is not an error.
	if i := m.productIndex(id); i >= 0 {
		m.products[i] = patch.Apply(m.products[i], m.now().UTC())
	}
	m.record("UpdateProduct", subject, post)
	return post
}

func (m *Memory) DeleteProduct(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pre, post := m.begin(ctx, "DeleteProduct")
	if pre != nil {
		m.record("DeleteProduct", id, pre)
		return pre
	}
	if i := m.productIndex(id); i >= 0 {
		m.products = slices.Delete(m.products, i, i+1)
	}
	m.record("DeleteProduct", id, post)
	return post
}

func (m *Memory) RecordTransaction(ctx context.Context, tx model.TransactionPayload, owner, idempotencyKey string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pre, post := m.begin(ctx, "RecordTransaction")
	subject := describeItems(tx.Items)
	if pre != nil {
		m.record("RecordTransaction", subject, pre)
		return "", pre
	}
	if id, ok := m.idempotency[idempotencyKey]; ok && idempotencyKey != "" {
		m.record("RecordTransaction", subject+" => "+id+" (replayed)", post)
		return id, post
	}
	for _, item := range tx.Items {
		if m.productIndex(item.ProductID) < 0 {
			err := NewError(ClassConstraint, "23503", "sale_items.product_id %s not present in products", item.ProductID)
			m.record("RecordTransaction", subject, err)
			return "", err
		}
	}

	now := m.now().UTC()
	sale := tx.ToSale(m.ids.NewID(), owner)
	if sale.Date.IsZero() {
		sale.Date = now
	}
	for _, item := range tx.Items {
		i := m.productIndex(item.ProductID)
		m.products[i].Quantity = model.ApplyMovement(m.products[i].Quantity, model.MovementSale, item.Quantity)
		m.products[i].UpdatedAt = now
		mv := model.NewMovement(m.ids.NewID(), model.MovementFields{
			ProductID:     item.ProductID,
			ProductName:   item.Name,
			Type:          model.MovementSale,
			Quantity:      item.Quantity,
			Note:          model.SaleNote(sale.ID),
			PaymentMethod: tx.PaymentMethod,
			UnitCost:      item.UnitCost,
		}, now)
		m.movements = append([]model.StockMovement{mv}, m.movements...)
	}
	m.sales = append([]model.Sale{sale}, m.sales...)
	if idempotencyKey != "" {
		m.idempotency[idempotencyKey] = sale.ID
	}
	m.record("RecordTransaction", subject+" => "+sale.ID, post)
	return sale.ID, post
}

func (m *Memory) UpsertSettings(ctx context.Context, owner string, s model.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pre, post := m.begin(ctx, "UpsertSettings")
	if pre == nil && owner == "" {
		pre = NewError(ClassConstraint, "23502", "settings.user_id must not be null")
	}
	if pre != nil {
		m.record("UpsertSettings", s.StoreName, pre)
		return pre
	}
	m.settings[owner] = s.Clone()
	m.record("UpsertSettings", s.StoreName, post)
	return post
}

// Caller holds m.mu.
func (m *Memory) productIndex(id string) int {
	return slices.IndexFunc(m.products, func(p model.Product) bool { return p.ID == id })
}

// Caller holds m.mu.
func (m *Memory) checkBarcode(barcode, exceptID string) error {
	if barcode == "" {
		return nil
	}
	for _, p := range m.products {
		if p.Barcode == barcode && p.ID != exceptID {
			return NewError(ClassConstraint, "23505", "duplicate key value violates unique constraint \"products_barcode_key\"")
		}
	}
	return nil
}

func describePatch(p model.ProductPatch) string {
	var fields []string
	if p.Name != nil {
		fields = append(fields, "name="+*p.Name)
	}
	if p.Barcode != nil {
		fields = append(fields, "barcode="+*p.Barcode)
	}
	if p.Category != nil {
		fields = append(fields, "category="+*p.Category)
	}
	if p.Price != nil {
		fields = append(fields, "price="+p.Price.String())
	}
	if p.Cost != nil {
		fields = append(fields, "cost="+p.Cost.String())
	}
	if p.Quantity != nil {
		fields = append(fields, fmt.Sprintf("quantity=%d", *p.Quantity))
	}
	if p.MinStock != nil {
		fields = append(fields, fmt.Sprintf("min_stock=%d", *p.MinStock))
	}
	if p.Unit != nil {
		fields = append(fields, "unit="+*p.Unit)
	}
	return "{" + strings.Join(fields, " ") + "}"
}

func describeItems(items []model.SaleItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, fmt.Sprintf("%sx%d", it.ProductID, it.Quantity))
	}
	return "[" + strings.Join(parts, " ") + "]"
}
