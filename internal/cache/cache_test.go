package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stockpro/internal/model"
	"github.com/roach88/stockpro/internal/store"
)

func sampleSnapshot() model.Snapshot {
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	return model.Snapshot{
		Products: []model.Product{{
			ID: "p1", Name: "Café", Barcode: "200000000001",
			Price: decimal.RequireFromString("3.50"), Quantity: 12, MinStock: 2,
			Unit: "paquet", CreatedAt: at, UpdatedAt: at,
		}},
		Movements: []model.StockMovement{{
			ID: "m1", ProductID: "p1", ProductName: "Café", Type: model.MovementIn,
			Quantity: 12, Date: at, UnitCost: decimal.RequireFromString("2"),
		}},
		Sales: []model.Sale{},
		Settings: model.Settings{
			StoreName: "Boutique Djibouti", TaxRate: decimal.RequireFromString("10"),
			Categories: []string{"Alimentation"}, Units: []string{"paquet"},
		},
	}
}

func TestCache_SnapshotRoundTrip(t *testing.T) {
	kv, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	ctx := context.Background()
	c := New(kv)
	want := sampleSnapshot()
	require.NoError(t, c.SaveSnapshot(ctx, want))

	got, found, err := c.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.True(t, found)

	require.Len(t, got.Products, 1)
	assert.Equal(t, want.Products[0].ID, got.Products[0].ID)
	assert.True(t, want.Products[0].Price.Equal(got.Products[0].Price))
	assert.True(t, want.Products[0].CreatedAt.Equal(got.Products[0].CreatedAt))
	require.Len(t, got.Movements, 1)
	assert.Equal(t, model.MovementIn, got.Movements[0].Type)
	assert.Equal(t, "Boutique Djibouti", got.Settings.StoreName)
	assert.True(t, want.Settings.TaxRate.Equal(got.Settings.TaxRate))
}

func TestCache_UsesOfflineDataKeys(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	c := New(kv)

	require.NoError(t, c.Save(ctx, model.CollectionProducts, []model.Product{}))

	_, found, err := kv.Get(ctx, "stockpro_offline_data_products")
	require.NoError(t, err)
	assert.True(t, found)

	cols, err := c.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Collection{model.CollectionProducts}, cols)
}

func TestCache_LoadEmpty(t *testing.T) {
	got, found, err := New(store.NewMemory()).LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, got.Products)
	assert.Equal(t, model.DefaultSettings().StoreName, got.Settings.StoreName)
}

func TestCache_UnknownCollection(t *testing.T) {
	c := New(store.NewMemory())
	assert.Error(t, c.Save(context.Background(), "orders", nil))
	_, err := c.Load(context.Background(), "orders", new([]string))
	assert.Error(t, err)
}

func TestCache_StorageFailure(t *testing.T) {
	kv := store.NewMemory()
	boom := errors.New("quota exceeded")
	kv.Fail(boom)

	err := New(kv).SaveSnapshot(context.Background(), sampleSnapshot())
	assert.ErrorIs(t, err, boom)
}

func TestCache_CorruptValue(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	require.NoError(t, kv.Set(ctx, Key(model.CollectionSales), []byte("{not json")))

	var sales []model.Sale
	_, err := New(kv).Load(ctx, model.CollectionSales, &sales)
	assert.Error(t, err)
}
