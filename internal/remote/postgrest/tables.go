package postgrest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/stockpro/internal/model"
	"github.com/roach88/stockpro/internal/remote"
)

type productRow struct {
	ID        string          `json:"id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Name      string          `json:"name"`
	Barcode   string          `json:"barcode"`
	Category  string          `json:"category"`
	Price     decimal.Decimal `json:"price"`
	Cost      decimal.Decimal `json:"cost"`
	Quantity  int64           `json:"quantity"`
	MinStock  int64           `json:"min_stock"`
	Unit      string          `json:"unit"`
	CreatedAt *time.Time      `json:"created_at,omitempty"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
}

func (r productRow) toModel() model.Product {
	p := model.Product{
		ID: r.ID, Name: r.Name, Barcode: r.Barcode, Category: r.Category,
		Price: r.Price, Cost: r.Cost, Quantity: r.Quantity, MinStock: r.MinStock, Unit: r.Unit,
	}
	if r.CreatedAt != nil {
		p.CreatedAt = *r.CreatedAt
	}
	if r.UpdatedAt != nil {
		p.UpdatedAt = *r.UpdatedAt
	}
	return p
}

type movementRow struct {
	ID            string           `json:"id,omitempty"`
	UserID        string           `json:"user_id,omitempty"`
	ProductID     string           `json:"product_id"`
	ProductName   string           `json:"product_name"`
	Type          string           `json:"type"`
	Quantity      int64            `json:"quantity"`
	Note          *string          `json:"note"`
	PaymentMethod *string          `json:"payment_method"`
	UnitCost      *decimal.Decimal `json:"unit_cost"`
	CreatedAt     *time.Time       `json:"created_at,omitempty"`
}

func (r movementRow) toModel() model.StockMovement {
	m := model.StockMovement{
		ID: r.ID, ProductID: r.ProductID, ProductName: r.ProductName,
		Type: model.MovementType(r.Type), Quantity: r.Quantity,
	}
	if r.Note != nil {
		m.Note = *r.Note
	}
	if r.PaymentMethod != nil {
		m.PaymentMethod = model.NormalizePaymentMethod(*r.PaymentMethod)
	}
	if r.UnitCost != nil {
		m.UnitCost = *r.UnitCost
	}
	if r.CreatedAt != nil {
		m.Date = *r.CreatedAt
	}
	return m
}

type saleRow struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Total         decimal.Decimal `json:"total"`
	TotalBrut     decimal.Decimal `json:"total_brut"`
	VatRate       decimal.Decimal `json:"vat_rate_snapshot"`
	TvaTotal      decimal.Decimal `json:"tva_total"`
	Remise        decimal.Decimal `json:"remise"`
	TotalFinal    decimal.Decimal `json:"total_final"`
	MontantDonne  decimal.Decimal `json:"montant_donne"`
	Reste         decimal.Decimal `json:"reste"`
	PaymentMethod string          `json:"payment_method"`
	StoreName     string          `json:"store_name"`
	CreatedAt     time.Time       `json:"created_at"`
}

type saleItemRow struct {
	SaleID              string          `json:"sale_id"`
	ProductID           string          `json:"product_id"`
	ProductName         string          `json:"product_name"`
	ProductNameSnapshot string          `json:"product_name_snapshot"`
	ProductPrice        decimal.Decimal `json:"product_price"`
	PriceSnapshot       decimal.Decimal `json:"price_snapshot"`
	UnitCostSnapshot    decimal.Decimal `json:"unit_cost_snapshot"`
	ProductCost         decimal.Decimal `json:"product_cost"`
	Quantity            int64           `json:"quantity"`
}

// firstNonZero prefers the snapshot column and falls back to the legacy one.
func firstNonZero(ds ...decimal.Decimal) decimal.Decimal {
	for _, d := range ds {
		if !d.IsZero() {
			return d
		}
	}
	return decimal.Zero
}

func (r saleItemRow) toModel() model.SaleItem {
	name := r.ProductNameSnapshot
	if name == "" {
		name = r.ProductName
	}
	if name == "" {
		name = "Produit inconnu"
	}
	return model.SaleItem{
		ProductID: r.ProductID,
		Name:      name,
		Price:     firstNonZero(r.PriceSnapshot, r.ProductPrice),
		UnitCost:  firstNonZero(r.UnitCostSnapshot, r.ProductCost),
		Quantity:  r.Quantity,
	}
}

type settingsRow struct {
	UserID     string          `json:"user_id"`
	StoreName  string          `json:"store_name"`
	Address    string          `json:"address"`
	Phone      string          `json:"phone"`
	VatRate    decimal.Decimal `json:"vat_rate"`
	Categories []string        `json:"categories"`
	Units      []string        `json:"units"`
	UpdatedAt  string          `json:"updated_at,omitempty"`
}

func desc(column string) url.Values {
	return url.Values{"select": {"*"}, "order": {column + ".desc"}}
}

var returnRepresentation = map[string]string{"Prefer": "return=representation"}

func (c *Client) FetchProducts(ctx context.Context) ([]model.Product, error) {
	var rows []productRow
	if err := c.request(ctx, http.MethodGet, "/rest/v1/products", desc("created_at"), nil, nil, &rows); err != nil {
		return nil, fmt.Errorf("fetch products: %w", err)
	}
	out := make([]model.Product, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (c *Client) FetchMovements(ctx context.Context) ([]model.StockMovement, error) {
	var rows []movementRow
	if err := c.request(ctx, http.MethodGet, "/rest/v1/stock_movements", desc("created_at"), nil, nil, &rows); err != nil {
		return nil, fmt.Errorf("fetch movements: %w", err)
	}
	out := make([]model.StockMovement, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (c *Client) FetchSales(ctx context.Context) ([]model.Sale, error) {
	var sales []saleRow
	if err := c.request(ctx, http.MethodGet, "/rest/v1/sales", desc("created_at"), nil, nil, &sales); err != nil {
		return nil, fmt.Errorf("fetch sales: %w", err)
	}
	if len(sales) == 0 {
		return []model.Sale{}, nil
	}

	ids := make([]string, 0, len(sales))
	for _, s := range sales {
		ids = append(ids, s.ID)
	}
	q := url.Values{"select": {"*"}, "sale_id": {"in.(" + strings.Join(ids, ",") + ")"}}
	var items []saleItemRow
	if err := c.request(ctx, http.MethodGet, "/rest/v1/sale_items", q, nil, nil, &items); err != nil {
		return nil, fmt.Errorf("fetch sale items: %w", err)
	}
	bySale := make(map[string][]model.SaleItem, len(sales))
	for _, it := range items {
		bySale[it.SaleID] = append(bySale[it.SaleID], it.toModel())
	}

	out := make([]model.Sale, 0, len(sales))
	for _, s := range sales {
		total := firstNonZero(s.TotalFinal, s.Total)
		out = append(out, model.Sale{
			ID:            s.ID,
			Items:         bySale[s.ID],
			GrossTotal:    firstNonZero(s.TotalBrut, s.Total),
			TaxRate:       s.VatRate,
			TaxTotal:      s.TvaTotal,
			Discount:      s.Remise,
			Total:         total,
			AmountGiven:   s.MontantDonne,
			Change:        s.Reste,
			Date:          s.CreatedAt,
			PaymentMethod: model.NormalizePaymentMethod(s.PaymentMethod),
			OwnerID:       s.UserID,
			StoreName:     s.StoreName,
		})
	}
	return out, nil
}

// FetchSettings treats PGRST116 (no row for .single()) as "no settings".
func (c *Client) FetchSettings(ctx context.Context, owner string) (*model.Settings, error) {
	q := url.Values{"select": {"*"}, "user_id": {"eq." + owner}}
	headers := map[string]string{"Accept": "application/vnd.pgrst.object+json"}
	var row settingsRow
	err := c.request(ctx, http.MethodGet, "/rest/v1/settings", q, headers, nil, &row)
	if remote.CodeOf(err) == "PGRST116" {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch settings: %w", err)
	}
	return &model.Settings{
		StoreName:  row.StoreName,
		TaxRate:    row.VatRate,
		Address:    row.Address,
		Phone:      row.Phone,
		Categories: row.Categories,
		Units:      row.Units,
	}, nil
}

func (c *Client) InsertProduct(ctx context.Context, f model.ProductFields) (model.Product, error) {
	body := productRow{
		UserID: c.owner, Name: f.Name, Barcode: f.Barcode, Category: f.Category,
		Price: f.Price, Cost: f.Cost, Quantity: f.Quantity, MinStock: f.MinStock, Unit: f.Unit,
	}
	var rows []productRow
	if err := c.request(ctx, http.MethodPost, "/rest/v1/products", nil, returnRepresentation, body, &rows); err != nil {
		return model.Product{}, fmt.Errorf("insert product: %w", err)
	}
	if len(rows) == 0 {
		return model.Product{}, fmt.Errorf("insert product: %w", remote.NewError(remote.ClassTransient, "", "empty representation"))
	}
	return rows[0].toModel(), nil
}

// InsertMovement retries once without the optional payment_method and
// unit_cost columns when the backend predates them.
func (c *Client) InsertMovement(ctx context.Context, f model.MovementFields) (model.StockMovement, error) {
	body := map[string]any{
		"user_id":      c.owner,
		"product_id":   f.ProductID,
		"product_name": f.ProductName,
		"type":         string(f.Type),
		"quantity":     f.Quantity,
		"note":         nullable(f.Note),
	}
	if f.PaymentMethod != "" {
		body["payment_method"] = string(f.PaymentMethod)
	}
	if !f.UnitCost.IsZero() {
		body["unit_cost"] = f.UnitCost
	}

	var rows []movementRow
	err := c.request(ctx, http.MethodPost, "/rest/v1/stock_movements", nil, returnRepresentation, body, &rows)
	if code := remote.CodeOf(err); code == "42703" || code == "PGRST204" {
		msg := err.Error()
		dropped := false
		for _, col := range []string{"payment_method", "unit_cost"} {
			if _, ok := body[col]; ok && strings.Contains(msg, col) {
				delete(body, col)
				dropped = true
			}
		}
		if dropped {
			slog.Warn("stock_movements is missing optional columns, retrying without them", "error", err)
			rows = nil
			err = c.request(ctx, http.MethodPost, "/rest/v1/stock_movements", nil, returnRepresentation, body, &rows)
		}
	}
	if err != nil {
		return model.StockMovement{}, fmt.Errorf("insert movement: %w", err)
	}
	if len(rows) == 0 {
		return model.StockMovement{}, fmt.Errorf("insert movement: %w", remote.NewError(remote.ClassTransient, "", "empty representation"))
	}
	return rows[0].toModel(), nil
}

func (c *Client) UpdateProduct(ctx context.Context, id string, patch model.ProductPatch) error {
	q := url.Values{"id": {"eq." + id}}
	body := struct {
		model.ProductPatch
		UpdatedAt string `json:"updated_at"`
	}{patch, time.Now().UTC().Format(time.RFC3339Nano)}
	if err := c.request(ctx, http.MethodPatch, "/rest/v1/products", q, nil, body, nil); err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	q := url.Values{"id": {"eq." + id}}
	if err := c.request(ctx, http.MethodDelete, "/rest/v1/products", q, nil, nil, nil); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}

type rpcItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Name      string          `json:"name"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

type createSaleParams struct {
	Items         []rpcItem       `json:"p_items"`
	TotalBrut     decimal.Decimal `json:"p_total_brut"`
	VatRate       decimal.Decimal `json:"p_vat_rate"`
	TvaTotal      decimal.Decimal `json:"p_tva_total"`
	Remise        decimal.Decimal `json:"p_remise"`
	TotalFinal    decimal.Decimal `json:"p_total_final"`
	MontantDonne  decimal.Decimal `json:"p_montant_donne"`
	Reste         decimal.Decimal `json:"p_reste"`
	PaymentMethod string          `json:"p_payment_method"`
	StoreName     string          `json:"p_store_name"`
	UserID        string          `json:"p_user_id"`
}

// RecordTransaction calls the create_sale RPC. PostgREST resolves the function
// by its named arguments, so the idempotency key travels only in the
// Idempotency-Key header.
func (c *Client) RecordTransaction(ctx context.Context, tx model.TransactionPayload, owner, idempotencyKey string) (string, error) {
	params := createSaleParams{
		TotalBrut:     tx.GrossTotal,
		VatRate:       tx.TaxRate,
		TvaTotal:      tx.TaxTotal,
		Remise:        tx.Discount,
		TotalFinal:    tx.Total,
		MontantDonne:  tx.AmountGiven,
		Reste:         tx.Change,
		PaymentMethod: string(tx.PaymentMethod),
		StoreName:     tx.StoreName,
		UserID:        owner,
	}
	for _, it := range tx.Items {
		params.Items = append(params.Items, rpcItem{
			ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price, Name: it.Name, UnitCost: it.UnitCost,
		})
	}

	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.request(ctx, http.MethodPost, "/rest/v1/rpc/create_sale", nil, headers, params, &out); err != nil {
		return "", fmt.Errorf("record transaction: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("record transaction: %w", remote.NewError(remote.ClassTransient, "", "create_sale returned no id"))
	}
	return out.ID, nil
}

func (c *Client) UpsertSettings(ctx context.Context, owner string, s model.Settings) error {
	body := settingsRow{
		UserID:     owner,
		StoreName:  s.StoreName,
		Address:    s.Address,
		Phone:      s.Phone,
		VatRate:    s.TaxRate,
		Categories: s.Categories,
		Units:      s.Units,
		UpdatedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	q := url.Values{"on_conflict": {"user_id"}}
	headers := map[string]string{"Prefer": "resolution=merge-duplicates"}
	if err := c.request(ctx, http.MethodPost, "/rest/v1/settings", q, headers, body, nil); err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
