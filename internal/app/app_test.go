package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stockpro/internal/config"
	"github.com/roach88/stockpro/internal/engine"
	"github.com/roach88/stockpro/internal/model"
	"github.com/roach88/stockpro/internal/remote"
	"github.com/roach88/stockpro/internal/state"
	"github.com/roach88/stockpro/internal/store"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Parse(nil)
	require.NoError(t, err)
	cfg.DBPath = filepath.Join(t.TempDir(), "stockpro.db")
	cfg.Owner = "owner-1"
	return cfg
}

func TestNew_LocalOnly(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Remote)
	assert.Nil(t, a.Engine)
	assert.Nil(t, a.Scheduler)
	assert.False(t, a.Monitor.IsOnline())

	_, err = a.Sync(context.Background())
	assert.ErrorIs(t, err, ErrNoRemote)
	assert.ErrorIs(t, a.Run(context.Background()), ErrNoRemote)

	// Mutations still work and are queued.
	_, err = a.State.CreateProduct(context.Background(), model.ProductFields{Name: "Riz"})
	require.NoError(t, err)
	assert.Equal(t, 1, a.Queue.Len())
}

func TestNew_QueueSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	a, err := New(ctx, cfg)
	require.NoError(t, err)
	_, err = a.State.CreateProduct(ctx, model.ProductFields{Name: "Riz"})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b, err := New(ctx, cfg)
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, 1, b.Queue.Len())

	src, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.SourceCache, src)
	assert.Equal(t, "Riz", b.State.Products()[0].Name)
}

func TestSync_DrainsAgainstRemote(t *testing.T) {
	ctx := context.Background()
	r := remote.NewMemory()
	a, err := New(ctx, testConfig(t), WithKV(store.NewMemory()), WithRemote(r))
	require.NoError(t, err)
	defer a.Close()

	r.SetOffline(true)
	_, err = a.Load(ctx)
	require.NoError(t, err)
	require.False(t, a.Monitor.IsOnline(), "probe marks the store unreachable")

	_, err = a.State.CreateProduct(ctx, model.ProductFields{Name: "Riz", Price: decimal.NewFromInt(10)})
	require.NoError(t, err)
	require.Equal(t, 1, a.Queue.Len())

	r.SetOffline(false)
	rep, err := a.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.StopDrained, rep.StopReason)
	assert.Equal(t, 1, rep.Succeeded)
	assert.Equal(t, 0, a.Queue.Len())
	assert.Len(t, r.Snapshot("owner-1").Products, 1)
}

func TestDemo(t *testing.T) {
	cfg := testConfig(t)
	cfg.Demo = true
	cfg.Owner = ""

	a, err := New(context.Background(), cfg, WithKV(store.NewMemory()))
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, DemoOwner, a.Config.Owner)
	src, err := a.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.SourceRemote, src)
	assert.Len(t, a.State.Products(), 4)
	assert.Equal(t, "Boutique Démo", a.State.Settings().StoreName)
	assert.NotEmpty(t, a.State.LowStockProducts())
}

func TestRun_StopsWithContext(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sync.Interval = 5 * time.Millisecond
	a, err := New(context.Background(), cfg, WithKV(store.NewMemory()), WithRemote(remote.NewMemory()))
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.NoError(t, a.Run(ctx))
}
