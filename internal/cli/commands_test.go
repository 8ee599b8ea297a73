package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stockpro/internal/app"
	"github.com/roach88/stockpro/internal/model"
	"github.com/roach88/stockpro/internal/remote"
	"github.com/roach88/stockpro/internal/store"
)

// cliFixture runs commands against one shared local store and one
// in-memory backend, the way consecutive invocations share a database.
type cliFixture struct {
	t      *testing.T
	kv     *store.Memory
	remote *remote.Memory
	config string
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "stockpro.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("owner: owner-1\n"), 0o644))

	r := remote.NewMemory()
	settings := model.DefaultSettings()
	settings.StoreName = "Boutique Centrale"
	r.Seed("owner-1", model.Snapshot{Settings: settings})

	return &cliFixture{t: t, kv: store.NewMemory(), remote: r, config: cfg}
}

// run executes args and returns stdout and the command error.
func (f *cliFixture) run(args ...string) (string, error) {
	f.t.Helper()
	opts := &RootOptions{AppOptions: []app.Option{app.WithKV(f.kv), app.WithRemote(f.remote)}}
	cmd := newRootCommand(opts)
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(append([]string{"--config", f.config}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// runJSON executes args in JSON mode and decodes the data field into v.
func (f *cliFixture) runJSON(v any, args ...string) error {
	f.t.Helper()
	out, err := f.run(append([]string{"--format", "json"}, args...)...)
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(f.t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	if v != nil && resp.Status == "ok" {
		require.NoError(f.t, json.Unmarshal(resp.Data, v))
	}
	return err
}

func TestProductAdd_OnlineGetsServerID(t *testing.T) {
	f := newCLIFixture(t)

	var p model.Product
	require.NoError(t, f.runJSON(&p, "product", "add", "--name", "Savon", "--price", "100", "--cost", "60", "--qty", "10"))
	assert.Equal(t, "srv-1", p.ID)
	assert.Equal(t, "Savon", p.Name)
	assert.NotEmpty(t, p.Barcode)

	var products []model.Product
	require.NoError(t, f.runJSON(&products, "product", "list"))
	require.Len(t, products, 1)
	assert.Equal(t, "srv-1", products[0].ID)
	assert.Len(t, f.remote.Snapshot("owner-1").Products, 1)
}

func TestOfflineSession_QueuesThenSyncs(t *testing.T) {
	f := newCLIFixture(t)
	f.remote.SetOffline(true)

	out, err := f.run("product", "add", "--name", "Riz", "--price", "2500", "--qty", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "queued for sync (1 pending)")

	var ops []OperationView
	require.NoError(t, f.runJSON(&ops, "queue", "list"))
	require.Len(t, ops, 1)
	assert.Equal(t, "create_entity", ops[0].Kind)
	assert.Contains(t, ops[0].Subject, `"Riz"`)

	var status StatusView
	require.NoError(t, f.runJSON(&status, "status"))
	assert.False(t, status.Online)
	assert.Equal(t, 1, status.Pending)
	assert.Equal(t, 1, status.PendingByKind["create_entity"])

	// Still offline: the pass stops without losing anything.
	var view SyncView
	err = f.runJSON(&view, "sync")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, 1, view.Report.Remaining)

	f.remote.SetOffline(false)
	require.NoError(t, f.runJSON(&view, "sync"))
	assert.Equal(t, 1, view.Report.Succeeded)
	assert.Equal(t, 0, view.Report.Remaining)
	assert.True(t, view.Report.Refreshed)

	require.NoError(t, f.runJSON(&ops, "queue", "list"))
	assert.Empty(t, ops)
	remoteProducts := f.remote.Snapshot("owner-1").Products
	require.Len(t, remoteProducts, 1)
	assert.Equal(t, "Riz", remoteProducts[0].Name)
}

func TestSale_ByBarcodeWithExactPayment(t *testing.T) {
	f := newCLIFixture(t)
	_, err := f.run("product", "add", "--name", "Savon", "--barcode", "3017620422003", "--price", "100", "--cost", "60", "--qty", "10")
	require.NoError(t, err)

	var sale model.Sale
	require.NoError(t, f.runJSON(&sale, "sale", "--item", "3017620422003:3", "--payment", "Mobile_Money"))
	assert.True(t, decimal.NewFromInt(300).Equal(sale.Total), "total %s", sale.Total)
	assert.True(t, sale.Total.Equal(sale.AmountGiven))
	assert.True(t, sale.Change.IsZero())
	assert.Equal(t, model.PaymentDMoney, sale.PaymentMethod)
	assert.Equal(t, "Boutique Centrale", sale.StoreName)

	var products []model.Product
	require.NoError(t, f.runJSON(&products, "product", "list"))
	require.Len(t, products, 1)
	assert.EqualValues(t, 7, products[0].Quantity)
	assert.Len(t, f.remote.Snapshot("owner-1").Sales, 1)
}

func TestSale_Rejections(t *testing.T) {
	f := newCLIFixture(t)
	_, err := f.run("product", "add", "--name", "Savon", "--barcode", "111", "--price", "100")
	require.NoError(t, err)

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"unknown product", []string{"sale", "--item", "nope"}, ExitFailure},
		{"bad quantity", []string{"sale", "--item", "111:zero"}, ExitFailure},
		{"insufficient payment", []string{"sale", "--item", "111:2", "--given", "150"}, ExitFailure},
		{"negative discount", []string{"sale", "--item", "111", "--discount", "-5"}, ExitFailure},
		{"bad decimal", []string{"sale", "--item", "111", "--given", "abc"}, ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.run(tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, GetExitCode(err))
		})
	}
	assert.Empty(t, f.remote.Snapshot("owner-1").Sales)
}

func TestProductUpdateAndDelete(t *testing.T) {
	f := newCLIFixture(t)
	var p model.Product
	require.NoError(t, f.runJSON(&p, "product", "add", "--name", "Savon", "--price", "100", "--min-stock", "5"))

	var updated model.Product
	require.NoError(t, f.runJSON(&updated, "product", "update", p.ID, "--price", "120"))
	assert.True(t, decimal.NewFromInt(120).Equal(updated.Price))
	assert.EqualValues(t, 5, updated.MinStock, "unset flags are left alone")

	_, err := f.run("product", "update", "missing", "--price", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, err = f.run("product", "delete", p.ID)
	require.NoError(t, err)
	assert.Empty(t, f.remote.Snapshot("owner-1").Products)
}

func TestMovementAdd(t *testing.T) {
	f := newCLIFixture(t)
	var p model.Product
	require.NoError(t, f.runJSON(&p, "product", "add", "--name", "Huile", "--qty", "4"))

	var m model.StockMovement
	require.NoError(t, f.runJSON(&m, "movement", "add", p.ID, "--type", "in", "--qty", "6", "--note", "Livraison"))
	assert.Equal(t, model.MovementIn, m.Type)
	assert.Equal(t, p.ID, m.ProductID)

	out, err := f.run("movement", "add", p.ID, "--type", "sale", "--qty", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "E003")

	var moves []model.StockMovement
	require.NoError(t, f.runJSON(&moves, "movement", "list"))
	require.Len(t, moves, 1)
	assert.Equal(t, "Livraison", moves[0].Note)
}

func TestSettingsSetAndShow(t *testing.T) {
	f := newCLIFixture(t)
	_, err := f.run("settings", "set", "--store-name", "Chez Amina", "--tax-rate", "10")
	require.NoError(t, err)

	var s model.Settings
	require.NoError(t, f.runJSON(&s, "settings", "show"))
	assert.Equal(t, "Chez Amina", s.StoreName)
	assert.True(t, decimal.NewFromInt(10).Equal(s.TaxRate))

	_, err = f.run("settings", "set", "--tax-rate", "150")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestDashboard(t *testing.T) {
	f := newCLIFixture(t)
	_, err := f.run("product", "add", "--name", "Piles", "--price", "50", "--qty", "2", "--min-stock", "5")
	require.NoError(t, err)

	var view DashboardView
	require.NoError(t, f.runJSON(&view, "dashboard", "--months", "3"))
	assert.Equal(t, 1, view.Products)
	assert.True(t, decimal.NewFromInt(100).Equal(view.InventoryValue))
	assert.Len(t, view.LowStock, 1)
	assert.Len(t, view.Monthly, 3)
}

func TestCacheShow(t *testing.T) {
	f := newCLIFixture(t)
	_, err := f.run("product", "add", "--name", "Savon")
	require.NoError(t, err)

	out, err := f.run("cache", "show", "products")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "Savon"`)

	out, err = f.run("cache", "show", "customers")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "E004")
}

func TestQueueClear(t *testing.T) {
	f := newCLIFixture(t)
	f.remote.SetOffline(true)
	_, err := f.run("product", "add", "--name", "Savon")
	require.NoError(t, err)

	out, err := f.run("queue", "clear")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "E006")

	out, err = f.run("queue", "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared 1 pending operation(s)")
}

func TestSync_NoRemote(t *testing.T) {
	dir := t.TempDir()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", filepath.Join(dir, "stockpro.db"), "sync"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out.String(), "E005")
}

func TestConfigError(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("log:\n  level: loud\n"), 0o644))

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", bad, "status"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out.String(), "E001")
}
