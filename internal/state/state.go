// Package state is the in-memory source of truth the point of sale reads
// from and mutates.
//
// Every mutation is applied locally first and written through to the local
// cache, then sent to the remote store directly when that is safe (online,
// signed in, nothing queued ahead of it). Otherwise, or when the direct call
// fails, the mutation becomes a pending operation. Only pre-flight
// validation errors ever reach the caller; connectivity never does.
package state

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/stockpro/internal/ident"
	"github.com/roach88/stockpro/internal/model"
	"github.com/roach88/stockpro/internal/queue"
	"github.com/roach88/stockpro/internal/remote"
)

// Pre-flight validation errors.
var (
	ErrEmptyCart           = errors.New("cart is empty")
	ErrNegativeDiscount    = errors.New("discount must not be negative")
	ErrInsufficientPayment = errors.New("amount given is less than the amount due")
	ErrDuplicateBarcode    = errors.New("barcode already exists")
	ErrProductNotFound     = errors.New("product not found")
	ErrInvalidQuantity     = errors.New("quantity must be positive")
)

// Queue is the part of *queue.Queue the state controller uses.
type Queue interface {
	Enqueue(ctx context.Context, p queue.Payload) (string, error)
	RewriteProductID(ctx context.Context, from, to string) int
	Len() int
}

// Cache is the part of *cache.Cache the state controller uses.
type Cache interface {
	Save(ctx context.Context, col model.Collection, v any) error
	SaveSnapshot(ctx context.Context, snap model.Snapshot) error
	LoadSnapshot(ctx context.Context) (model.Snapshot, bool, error)
}

// Connectivity is the online predicate.
type Connectivity interface {
	IsOnline() bool
}

// State holds the local collections and the cart.
type State struct {
	mu        sync.Mutex
	products  []model.Product
	movements []model.StockMovement
	sales     []model.Sale
	settings  model.Settings
	cart      []model.CartItem

	queue   Queue
	remote  remote.Store
	cache   Cache
	conn    Connectivity
	owner   string
	ids     ident.Generator
	barcode ident.BarcodeFunc
	now     func() time.Time
}

// Option configures a State.
type Option func(*State)

// WithOwner sets the signed-in user. Without an owner nothing is sent
// directly; every mutation is queued.
func WithOwner(owner string) Option {
	return func(s *State) { s.owner = owner }
}

// WithConnectivity sets the online predicate (always online by default).
func WithConnectivity(c Connectivity) Option {
	return func(s *State) { s.conn = c }
}

// WithIDGenerator sets the generator for local ids (UUIDv7 by default).
func WithIDGenerator(g ident.Generator) Option {
	return func(s *State) { s.ids = g }
}

// WithBarcodes sets the barcode source for products created without one.
func WithBarcodes(f ident.BarcodeFunc) Option {
	return func(s *State) { s.barcode = f }
}

// WithNow sets the clock.
func WithNow(now func() time.Time) Option {
	return func(s *State) { s.now = now }
}

// New creates a State. r may be nil, in which case every mutation is
// queued.
func New(q Queue, r remote.Store, c Cache, opts ...Option) *State {
	s := &State{
		settings: model.DefaultSettings(),
		queue:    q,
		remote:   r,
		cache:    c,
		ids:      ident.UUIDv7Generator{},
		barcode:  ident.RandomBarcode,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Source tells where Load found its data.
type Source string

const (
	SourceRemote Source = "remote"
	SourceCache  Source = "cache"
	SourceEmpty  Source = "empty"
)

// Load fills the state at startup. With connectivity, a signed-in owner
// and nothing pending it reads the remote store and refreshes the cache;
// otherwise, or if the remote read fails, it restores the cache. Pending
// operations mean the cache holds changes the remote store has not seen,
// so the cache wins until the queue drains.
func (s *State) Load(ctx context.Context) (Source, error) {
	if s.remote != nil && s.online() && s.queue.Len() == 0 {
		snap, err := remote.FetchSnapshot(ctx, s.remote, s.owner)
		if err == nil {
			s.Replace(ctx, snap)
			return SourceRemote, nil
		}
		slog.Warn("remote load failed, using offline cache", "error", err)
	}

	snap, found, err := s.cache.LoadSnapshot(ctx)
	if err != nil {
		return SourceEmpty, err
	}
	s.mu.Lock()
	s.products = snap.Products
	s.movements = snap.Movements
	s.sales = snap.Sales
	s.settings = snap.Settings
	s.mu.Unlock()

	if !found {
		return SourceEmpty, nil
	}
	slog.Info("loaded offline cache", "products", len(snap.Products), "movements", len(snap.Movements), "sales", len(snap.Sales))
	return SourceCache, nil
}

// Replace overwrites every collection with snap and writes it through to
// the cache. Cart lines keep their quantities but pick up fresh product
// data when the product still exists.
func (s *State) Replace(ctx context.Context, snap model.Snapshot) {
	s.mu.Lock()
	s.products = slices.Clone(snap.Products)
	s.movements = slices.Clone(snap.Movements)
	s.sales = slices.Clone(snap.Sales)
	s.settings = snap.Settings.Clone()
	for i, line := range s.cart {
		if j := s.productIndex(line.Product.ID); j >= 0 {
			s.cart[i].Product = s.products[j]
		}
	}
	s.mu.Unlock()

	if err := s.cache.SaveSnapshot(ctx, snap); err != nil {
		slog.Warn("write offline cache", "error", err)
	}
}

// Snapshot returns a copy of every collection.
func (s *State) Snapshot() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.Snapshot{
		Products:  slices.Clone(s.products),
		Movements: slices.Clone(s.movements),
		Sales:     slices.Clone(s.sales),
		Settings:  s.settings.Clone(),
	}
}

func (s *State) Products() []model.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.products)
}

func (s *State) Movements() []model.StockMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.movements)
}

func (s *State) Sales() []model.Sale {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sales)
}

func (s *State) Settings() model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.Clone()
}

// Product returns the product with the given id.
func (s *State) Product(id string) (model.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.productIndex(id); i >= 0 {
		return s.products[i], true
	}
	return model.Product{}, false
}

// ProductByBarcode returns the product with the given barcode.
func (s *State) ProductByBarcode(barcode string) (model.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.products, func(p model.Product) bool { return p.Barcode == barcode })
	if i < 0 {
		return model.Product{}, false
	}
	return s.products[i], true
}

// Caller holds s.mu.
func (s *State) productIndex(id string) int {
	return slices.IndexFunc(s.products, func(p model.Product) bool { return p.ID == id })
}

// Caller holds s.mu.
func (s *State) barcodeTaken(barcode, exceptID string) bool {
	return slices.ContainsFunc(s.products, func(p model.Product) bool {
		return p.Barcode == barcode && p.ID != exceptID
	})
}

func (s *State) online() bool {
	return s.conn == nil || s.conn.IsOnline()
}
