package state

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stockpro/internal/cache"
	"github.com/roach88/stockpro/internal/engine"
	"github.com/roach88/stockpro/internal/ident"
	"github.com/roach88/stockpro/internal/model"
	"github.com/roach88/stockpro/internal/queue"
	"github.com/roach88/stockpro/internal/remote"
	"github.com/roach88/stockpro/internal/store"
)

const owner = "owner-1"

var testNow = time.Date(2026, 6, 15, 14, 30, 0, 0, time.UTC)

type onlineFlag struct{ atomic.Bool }

func (f *onlineFlag) IsOnline() bool { return f.Load() }

type fixture struct {
	kv     *store.Memory
	q      *queue.Queue
	cache  *cache.Cache
	remote *remote.Memory
	online *onlineFlag
	s      *State
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	now := func() time.Time { return testNow }

	kv := store.NewMemory()
	f := &fixture{
		kv: kv,
		q: queue.Open(ctx, kv,
			queue.WithIDGenerator(ident.NewSequenceGenerator("op")),
			queue.WithNow(now)),
		cache:  cache.New(kv),
		remote: remote.NewMemory(remote.WithClock(now)),
		online: &onlineFlag{},
	}
	f.online.Store(true)
	f.s = New(f.q, f.remote, f.cache,
		WithOwner(owner),
		WithConnectivity(f.online),
		WithIDGenerator(ident.NewSequenceGenerator("loc")),
		WithBarcodes(ident.SequentialBarcodes()),
		WithNow(now))
	return f
}

func soap() model.Product {
	return model.Product{
		ID:       "p1",
		Name:     "Savon",
		Barcode:  "3017620422003",
		Category: "Beauté",
		Price:    decimal.NewFromInt(100),
		Cost:     decimal.NewFromInt(60),
		Quantity: 10,
		MinStock: 2,
		Unit:     "pièce",
	}
}

// seeded loads one product (price 100, stock 10) at 0% tax from the remote.
func seeded(t *testing.T) *fixture {
	t.Helper()
	f := setup(t)
	settings := model.DefaultSettings()
	settings.StoreName = "Boutique Centrale"
	f.remote.Seed(owner, model.Snapshot{Products: []model.Product{soap()}, Settings: settings})

	src, err := f.s.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, SourceRemote, src)
	f.remote.ResetCalls()
	return f
}

func transient() error {
	return remote.NewError(remote.ClassTransient, "503", "service unavailable")
}

func methods(calls []remote.Call) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Method
	}
	return out
}

func TestRecordSale_ScenarioA(t *testing.T) {
	f := seeded(t)
	ctx := context.Background()

	require.NoError(t, f.s.AddToCart(soap(), 2))
	sale, err := f.s.RecordSale(ctx, "cash", decimal.Zero, decimal.NewFromInt(200))
	require.NoError(t, err)

	assert.True(t, sale.GrossTotal.Equal(decimal.NewFromInt(200)))
	assert.True(t, sale.Total.Equal(decimal.NewFromInt(200)))
	assert.True(t, sale.Change.IsZero())
	assert.Equal(t, model.PaymentCash, sale.PaymentMethod)
	assert.Equal(t, "Boutique Centrale", sale.StoreName)

	p, ok := f.s.Product("p1")
	require.True(t, ok)
	assert.Equal(t, int64(8), p.Quantity)
	assert.Empty(t, f.s.Cart())

	// Sent directly, reconciled to the remote id, nothing queued.
	assert.Equal(t, 0, f.q.Len())
	assert.Equal(t, []string{"RecordTransaction"}, methods(f.remote.Calls()))
	assert.Equal(t, "srv-1", sale.ID)
	assert.Equal(t, "srv-1", f.s.Sales()[0].ID)
	assert.Equal(t, int64(8), f.remote.Snapshot(owner).Products[0].Quantity)
}

func TestRecordSale_ScenarioB(t *testing.T) {
	f := seeded(t)

	require.NoError(t, f.s.AddToCart(soap(), 2))
	sale, err := f.s.RecordSale(context.Background(), "cash", decimal.NewFromInt(50), decimal.NewFromInt(200))
	require.NoError(t, err)

	assert.True(t, sale.Total.Equal(decimal.NewFromInt(150)), "payable %s", sale.Total)
	assert.True(t, sale.Change.Equal(decimal.NewFromInt(50)), "change %s", sale.Change)
	assert.True(t, sale.Discount.Equal(decimal.NewFromInt(50)))
}

func TestRecordSale_ScenarioC_TransientFailureQueuesOneIntent(t *testing.T) {
	f := seeded(t)
	ctx := context.Background()
	f.remote.FailNext("RecordTransaction", transient())

	require.NoError(t, f.s.AddToCart(soap(), 2))
	sale, err := f.s.RecordSale(ctx, "cash", decimal.Zero, decimal.NewFromInt(200))
	require.NoError(t, err, "connectivity failures never reach the caller")
	assert.Equal(t, "loc-1", sale.ID)

	// Local state shows the sale applied.
	p, _ := f.s.Product("p1")
	assert.Equal(t, int64(8), p.Quantity)
	require.Len(t, f.s.Sales(), 1)
	movements := f.s.Movements()
	require.Len(t, movements, 1)
	assert.Equal(t, model.MovementSale, movements[0].Type)
	assert.Equal(t, "Vente #loc-1", movements[0].Note)
	assert.True(t, movements[0].UnitCost.Equal(decimal.NewFromInt(60)))

	// Exactly one consolidated intent, no movement intents.
	ops := f.q.List()
	require.Len(t, ops, 1)
	assert.Equal(t, queue.KindRecordTransaction, ops[0].Kind)
	tx := ops[0].Payload.(queue.RecordTransaction)
	assert.Equal(t, "loc-1", tx.LocalID)
	require.Len(t, tx.Transaction.Items, 1)
	assert.Equal(t, int64(2), tx.Transaction.Items[0].Quantity)
	assert.NotContains(t, methods(f.remote.Calls()), "InsertMovement")
}

func TestRecordSale_AmbiguousTimeoutReplaysOnce(t *testing.T) {
	f := seeded(t)
	ctx := context.Background()
	f.remote.FailAfterApply("RecordTransaction", remote.NewError(remote.ClassTransient, "timeout", "response lost"))

	require.NoError(t, f.s.AddToCart(soap(), 2))
	_, err := f.s.RecordSale(ctx, "cash", decimal.Zero, decimal.NewFromInt(200))
	require.NoError(t, err)
	require.Equal(t, 1, f.q.Len())

	e := engine.New(f.q, f.remote, f.s, engine.WithOwner(owner), engine.WithNow(func() time.Time { return testNow }))
	rep := e.Drain(ctx)
	assert.Equal(t, engine.StopDrained, rep.StopReason)

	// The replay carried the same idempotency key, so the sale exists once
	// and the stock was decremented once.
	snap := f.remote.Snapshot(owner)
	assert.Len(t, snap.Sales, 1)
	assert.Equal(t, int64(8), snap.Products[0].Quantity)
	assert.Len(t, f.s.Sales(), 1)
	assert.Equal(t, snap.Sales[0].ID, f.s.Sales()[0].ID)
}

func TestRecordSale_PreflightErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("empty cart", func(t *testing.T) {
		f := seeded(t)
		_, err := f.s.RecordSale(ctx, "cash", decimal.Zero, decimal.NewFromInt(10))
		assert.ErrorIs(t, err, ErrEmptyCart)
	})

	t.Run("negative discount", func(t *testing.T) {
		f := seeded(t)
		require.NoError(t, f.s.AddToCart(soap(), 1))
		_, err := f.s.RecordSale(ctx, "cash", decimal.NewFromInt(-1), decimal.NewFromInt(100))
		assert.ErrorIs(t, err, ErrNegativeDiscount)
	})

	t.Run("insufficient payment", func(t *testing.T) {
		f := seeded(t)
		require.NoError(t, f.s.AddToCart(soap(), 2))
		_, err := f.s.RecordSale(ctx, "cash", decimal.Zero, decimal.NewFromInt(199))
		require.ErrorIs(t, err, ErrInsufficientPayment)

		// Nothing changed.
		assert.Len(t, f.s.Cart(), 1)
		assert.Empty(t, f.s.Sales())
		p, _ := f.s.Product("p1")
		assert.Equal(t, int64(10), p.Quantity)
		assert.Empty(t, f.remote.Calls())
		assert.Equal(t, 0, f.q.Len())
	})
}

func TestRecordSale_TaxAndPaymentNormalization(t *testing.T) {
	f := seeded(t)
	ctx := context.Background()
	settings := f.s.Settings()
	settings.TaxRate = decimal.NewFromInt(10)
	require.NoError(t, f.s.UpdateSettings(ctx, settings))

	require.NoError(t, f.s.AddToCart(soap(), 1))
	sale, err := f.s.RecordSale(ctx, " Mobile_Money ", decimal.NewFromInt(500), decimal.Zero)
	require.NoError(t, err)

	assert.True(t, sale.TaxTotal.Equal(decimal.NewFromInt(10)))
	assert.True(t, sale.Total.IsZero(), "discount larger than the total clamps to zero")
	assert.Equal(t, model.PaymentDMoney, sale.PaymentMethod)
}

func TestRecordSale_StockFloorsAtZero(t *testing.T) {
	f := seeded(t)
	f.online.Store(false)

	require.NoError(t, f.s.AddToCart(soap(), 15))
	_, err := f.s.RecordSale(context.Background(), "card", decimal.Zero, decimal.NewFromInt(1500))
	require.NoError(t, err)

	p, _ := f.s.Product("p1")
	assert.Equal(t, int64(0), p.Quantity)
}

func TestCreateProduct_Direct(t *testing.T) {
	f := seeded(t)

	p, err := f.s.CreateProduct(context.Background(), model.ProductFields{
		Name: "Riz", Price: decimal.NewFromInt(1500), Quantity: 5, Unit: "kg",
	})
	require.NoError(t, err)

	assert.Equal(t, "srv-1", p.ID)
	assert.Equal(t, "200000000001", p.Barcode)
	assert.Equal(t, "srv-1", f.s.Products()[0].ID, "new products are listed first")
	assert.Equal(t, 0, f.q.Len())
}

func TestCreateProduct_OfflineQueues(t *testing.T) {
	f := seeded(t)
	f.online.Store(false)

	p, err := f.s.CreateProduct(context.Background(), model.ProductFields{Name: "Riz", Price: decimal.NewFromInt(1500)})
	require.NoError(t, err)
	assert.Equal(t, "loc-1", p.ID)
	assert.Empty(t, f.remote.Calls())

	ops := f.q.List()
	require.Len(t, ops, 1)
	create := ops[0].Payload.(queue.CreateEntity)
	assert.Equal(t, model.CollectionProducts, create.Collection)
	assert.Equal(t, "loc-1", create.LocalID)
	assert.Equal(t, "200000000001", create.Product.Barcode)
}

func TestCreateProduct_Validation(t *testing.T) {
	f := seeded(t)
	ctx := context.Background()

	_, err := f.s.CreateProduct(ctx, model.ProductFields{Name: "  "})
	assert.True(t, model.IsValidation(err))

	_, err = f.s.CreateProduct(ctx, model.ProductFields{Name: "Copie", Barcode: soap().Barcode})
	assert.ErrorIs(t, err, ErrDuplicateBarcode)

	assert.Len(t, f.s.Products(), 1)
	assert.Empty(t, f.remote.Calls())
}

func TestUpdateProduct(t *testing.T) {
	f := seeded(t)
	ctx := context.Background()
	require.NoError(t, f.s.AddToCart(soap(), 1))

	price := decimal.NewFromInt(120)
	p, err := f.s.UpdateProduct(ctx, "p1", model.ProductPatch{Price: &price})
	require.NoError(t, err)
	assert.True(t, p.Price.Equal(price))
	assert.True(t, f.s.Cart()[0].Product.Price.Equal(price), "cart follows product edits")
	assert.True(t, f.remote.Snapshot(owner).Products[0].Price.Equal(price))

	_, err = f.s.UpdateProduct(ctx, "missing", model.ProductPatch{Price: &price})
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = f.s.UpdateProduct(ctx, "p1", model.ProductPatch{})
	assert.True(t, model.IsValidation(err))
}

func TestUpdateProduct_DuplicateBarcode(t *testing.T) {
	f := seeded(t)
	ctx := context.Background()
	other, err := f.s.CreateProduct(ctx, model.ProductFields{Name: "Riz"})
	require.NoError(t, err)

	taken := soap().Barcode
	_, err = f.s.UpdateProduct(ctx, other.ID, model.ProductPatch{Barcode: &taken})
	assert.ErrorIs(t, err, ErrDuplicateBarcode)

	// Keeping its own barcode is fine.
	_, err = f.s.UpdateProduct(ctx, "p1", model.ProductPatch{Barcode: &taken})
	assert.NoError(t, err)
}

func TestDeleteProduct(t *testing.T) {
	f := seeded(t)
	ctx := context.Background()
	require.NoError(t, f.s.AddToCart(soap(), 1))

	require.NoError(t, f.s.DeleteProduct(ctx, "p1"))
	assert.Empty(t, f.s.Products())
	assert.Empty(t, f.s.Cart())
	assert.Empty(t, f.remote.Snapshot(owner).Products)

	assert.ErrorIs(t, f.s.DeleteProduct(ctx, "p1"), ErrProductNotFound)
}

func TestRecordStockMovement(t *testing.T) {
	tests := []struct {
		name    string
		typ     model.MovementType
		qty     int64
		wantQty int64
	}{
		{"in adds", model.MovementIn, 5, 15},
		{"out subtracts", model.MovementOut, 4, 6},
		{"out floors at zero", model.MovementOut, 50, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := seeded(t)
			mv, err := f.s.RecordStockMovement(context.Background(), "p1", tt.typ, tt.qty, "inventaire")
			require.NoError(t, err)

			p, _ := f.s.Product("p1")
			assert.Equal(t, tt.wantQty, p.Quantity)
			assert.Equal(t, "Savon", mv.ProductName)
			assert.True(t, mv.UnitCost.Equal(decimal.NewFromInt(60)))
			assert.Equal(t, []string{"InsertMovement", "UpdateProduct"}, methods(f.remote.Calls()))
			assert.Equal(t, tt.wantQty, f.remote.Snapshot(owner).Products[0].Quantity)
			assert.Equal(t, mv.ID, f.s.Movements()[0].ID)
		})
	}
}

func TestRecordStockMovement_PartialFailureQueuesRemainder(t *testing.T) {
	f := seeded(t)
	f.remote.FailNext("UpdateProduct", transient())

	_, err := f.s.RecordStockMovement(context.Background(), "p1", model.MovementIn, 5, "")
	require.NoError(t, err)

	ops := f.q.List()
	require.Len(t, ops, 1, "the movement insert went through; only the quantity update is pending")
	update := ops[0].Payload.(queue.UpdateEntity)
	assert.Equal(t, "p1", update.ID)
	require.NotNil(t, update.Patch.Quantity)
	assert.Equal(t, int64(15), *update.Patch.Quantity)
}

func TestRecordStockMovement_Errors(t *testing.T) {
	f := seeded(t)
	ctx := context.Background()

	_, err := f.s.RecordStockMovement(ctx, "p1", model.MovementIn, 0, "")
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = f.s.RecordStockMovement(ctx, "nope", model.MovementIn, 1, "")
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = f.s.RecordStockMovement(ctx, "p1", model.MovementType("gift"), 1, "")
	assert.True(t, model.IsValidation(err))

	assert.Empty(t, f.s.Movements())
}

func TestPendingQueueForcesQueueing(t *testing.T) {
	f := seeded(t)
	ctx := context.Background()

	f.online.Store(false)
	_, err := f.s.RecordStockMovement(ctx, "p1", model.MovementIn, 1, "")
	require.NoError(t, err)
	require.Equal(t, 2, f.q.Len())

	// Back online, but earlier intents are pending: the new one goes
	// behind them instead of overtaking.
	f.online.Store(true)
	_, err = f.s.RecordStockMovement(ctx, "p1", model.MovementOut, 3, "")
	require.NoError(t, err)
	assert.Equal(t, 4, f.q.Len())
	assert.Empty(t, f.remote.Calls())
}

func TestNoOwnerQueues(t *testing.T) {
	f := setup(t)
	s := New(f.q, f.remote, f.cache, WithConnectivity(f.online), WithIDGenerator(ident.NewSequenceGenerator("loc")))

	require.NoError(t, s.UpdateSettings(context.Background(), model.DefaultSettings()))
	assert.Equal(t, 1, f.q.Len())
	assert.Empty(t, f.remote.Calls())
}

func TestOfflineSessionReconcilesAfterDrain(t *testing.T) {
	f := seeded(t)
	ctx := context.Background()
	f.online.Store(false)

	// Created and sold before the create ever reached the remote store.
	rice, err := f.s.CreateProduct(ctx, model.ProductFields{Name: "Riz", Price: decimal.NewFromInt(50), Quantity: 20})
	require.NoError(t, err)
	require.Equal(t, "loc-1", rice.ID)
	require.NoError(t, f.s.AddToCart(rice, 3))
	_, err = f.s.RecordSale(ctx, "cash", decimal.Zero, decimal.NewFromInt(150))
	require.NoError(t, err)
	_, err = f.s.RecordStockMovement(ctx, rice.ID, model.MovementIn, 10, "livraison")
	require.NoError(t, err)
	require.Equal(t, 4, f.q.Len())

	f.online.Store(true)
	e := engine.New(f.q, f.remote, f.s, engine.WithOwner(owner), engine.WithNow(func() time.Time { return testNow }))
	rep := e.Drain(ctx)
	require.Equal(t, engine.StopDrained, rep.StopReason, "report: %+v", rep)
	assert.Equal(t, 4, rep.Succeeded)
	assert.True(t, rep.Refreshed)

	remoteSnap := f.remote.Snapshot(owner)
	require.Len(t, remoteSnap.Sales, 1)
	riceID := remoteSnap.Sales[0].Items[0].ProductID
	assert.Equal(t, "srv-1", riceID, "the queued sale was rewritten to the remote product id")

	p, ok := f.s.Product(riceID)
	require.True(t, ok)
	assert.Equal(t, int64(27), p.Quantity)
	_, ok = f.s.Product("loc-1")
	assert.False(t, ok)
	for _, mv := range f.s.Movements() {
		assert.NotEqual(t, "loc-1", mv.ProductID)
	}
}

func TestReconcileProduct_RewritesReferences(t *testing.T) {
	f := seeded(t)
	ctx := context.Background()
	f.online.Store(false)

	rice, err := f.s.CreateProduct(ctx, model.ProductFields{Name: "Riz", Quantity: 5})
	require.NoError(t, err)
	require.NoError(t, f.s.AddToCart(rice, 1))
	_, err = f.s.RecordStockMovement(ctx, rice.ID, model.MovementOut, 2, "")
	require.NoError(t, err)

	remoteCopy := rice
	remoteCopy.ID = "srv-9"
	remoteCopy.Quantity = 5
	f.s.ReconcileProduct(ctx, rice.ID, remoteCopy)

	p, ok := f.s.Product("srv-9")
	require.True(t, ok)
	assert.Equal(t, int64(3), p.Quantity, "local stock changes survive reconciliation")
	assert.Equal(t, "srv-9", f.s.Cart()[0].Product.ID)
	assert.Equal(t, "srv-9", f.s.Movements()[0].ProductID)
}

func TestReconcileSaleAndMovement(t *testing.T) {
	f := seeded(t)
	ctx := context.Background()
	f.online.Store(false)

	mv, err := f.s.RecordStockMovement(ctx, "p1", model.MovementIn, 1, "")
	require.NoError(t, err)
	require.NoError(t, f.s.AddToCart(soap(), 1))
	sale, err := f.s.RecordSale(ctx, "cash", decimal.Zero, decimal.NewFromInt(100))
	require.NoError(t, err)

	f.s.ReconcileMovement(ctx, mv.ID, model.StockMovement{ID: "srv-m"})
	f.s.ReconcileSale(ctx, sale.ID, "srv-s")
	f.s.ReconcileSale(ctx, "unknown", "srv-x")

	assert.Equal(t, "srv-s", f.s.Sales()[0].ID)
	movements := f.s.Movements()
	assert.Equal(t, "srv-m", movements[len(movements)-1].ID)
}

func TestWriteThroughCache(t *testing.T) {
	f := seeded(t)
	ctx := context.Background()
	f.online.Store(false)

	_, err := f.s.CreateProduct(ctx, model.ProductFields{Name: "Riz"})
	require.NoError(t, err)

	var cached []model.Product
	found, err := f.cache.Load(ctx, model.CollectionProducts, &cached)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, cached, 2)
	assert.Equal(t, "Riz", cached[0].Name)
}

func TestCacheFailureIsNotSurfaced(t *testing.T) {
	f := seeded(t)
	f.kv.Fail(errors.New("disk full"))

	_, err := f.s.CreateProduct(context.Background(), model.ProductFields{Name: "Riz"})
	require.NoError(t, err)
	assert.Len(t, f.s.Products(), 2)
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("offline restores cache", func(t *testing.T) {
		f := seeded(t)
		f.online.Store(false)
		_, err := f.s.CreateProduct(ctx, model.ProductFields{Name: "Riz"})
		require.NoError(t, err)

		restarted := New(f.q, f.remote, f.cache, WithOwner(owner), WithConnectivity(f.online))
		src, err := restarted.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, SourceCache, src)
		assert.Len(t, restarted.Products(), 2)
		assert.Equal(t, "Boutique Centrale", restarted.Settings().StoreName)
	})

	t.Run("pending operations prefer cache", func(t *testing.T) {
		f := seeded(t)
		f.online.Store(false)
		_, err := f.s.CreateProduct(ctx, model.ProductFields{Name: "Riz"})
		require.NoError(t, err)
		f.online.Store(true)

		restarted := New(f.q, f.remote, f.cache, WithOwner(owner), WithConnectivity(f.online))
		src, err := restarted.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, SourceCache, src)
		assert.Len(t, restarted.Products(), 2, "the unsynced product is not lost")
	})

	t.Run("remote failure falls back to cache", func(t *testing.T) {
		f := seeded(t)
		f.remote.FailNext("FetchProducts", transient())

		src, err := f.s.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, SourceCache, src)
		assert.Len(t, f.s.Products(), 1)
	})

	t.Run("nothing anywhere", func(t *testing.T) {
		f := setup(t)
		f.online.Store(false)

		src, err := f.s.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, SourceEmpty, src)
		assert.Equal(t, model.DefaultSettings().StoreName, f.s.Settings().StoreName)
	})
}

func TestCart(t *testing.T) {
	f := setup(t)
	p := soap()

	assert.ErrorIs(t, f.s.AddToCart(p, 0), ErrInvalidQuantity)
	require.NoError(t, f.s.AddToCart(p, 1))
	require.NoError(t, f.s.AddToCart(p, 2))
	require.Len(t, f.s.Cart(), 1)
	assert.Equal(t, int64(3), f.s.Cart()[0].Quantity)
	assert.True(t, f.s.CartTotal().Equal(decimal.NewFromInt(300)))

	f.s.UpdateCartQuantity(p.ID, 5)
	assert.Equal(t, int64(5), f.s.Cart()[0].Quantity)

	f.s.UpdateCartQuantity(p.ID, 0)
	assert.Empty(t, f.s.Cart())

	require.NoError(t, f.s.AddToCart(p, 1))
	f.s.ClearCart()
	assert.Empty(t, f.s.Cart())
	assert.True(t, f.s.CartTotal().IsZero())
}
