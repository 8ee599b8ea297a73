// Package cache persists serialized copies of the local entity collections
// so the point of sale can start with data when there is no connectivity.
//
// The cache never owns data: the state controller writes through to it on
// every mutation and refresh, and reads it back once at startup.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/stockpro/internal/model"
	"github.com/roach88/stockpro/internal/store"
)

// KeyPrefix is prepended to the collection name to form the storage key.
const KeyPrefix = "stockpro_offline_data_"

// Key returns the storage key of a collection.
func Key(c model.Collection) string {
	return KeyPrefix + string(c)
}

// Cache reads and writes collection snapshots in a KV store.
type Cache struct {
	kv store.KV
}

// New returns a cache over kv.
func New(kv store.KV) *Cache {
	return &Cache{kv: kv}
}

// Save serializes v and stores it as the snapshot of collection c.
func (c *Cache) Save(ctx context.Context, col model.Collection, v any) error {
	if !col.Valid() {
		return fmt.Errorf("save cache: unknown collection %q", col)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("save cache %s: %w", col, err)
	}
	if err := c.kv.Set(ctx, Key(col), data); err != nil {
		return fmt.Errorf("save cache %s: %w", col, err)
	}
	return nil
}

// Load decodes the snapshot of collection c into v. It reports found=false
// when nothing was cached yet.
func (c *Cache) Load(ctx context.Context, col model.Collection, v any) (bool, error) {
	if !col.Valid() {
		return false, fmt.Errorf("load cache: unknown collection %q", col)
	}
	data, found, err := c.kv.Get(ctx, Key(col))
	if err != nil {
		return false, fmt.Errorf("load cache %s: %w", col, err)
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("load cache %s: %w", col, err)
	}
	return true, nil
}

// Raw returns the stored bytes of collection c.
func (c *Cache) Raw(ctx context.Context, col model.Collection) ([]byte, bool, error) {
	data, found, err := c.kv.Get(ctx, Key(col))
	if err != nil {
		return nil, false, fmt.Errorf("read cache %s: %w", col, err)
	}
	return data, found, nil
}

// Collections lists the collections that have a cached snapshot.
func (c *Cache) Collections(ctx context.Context) ([]model.Collection, error) {
	keys, err := c.kv.Keys(ctx, KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list cache: %w", err)
	}
	cols := make([]model.Collection, 0, len(keys))
	for _, k := range keys {
		col := model.Collection(strings.TrimPrefix(k, KeyPrefix))
		if col.Valid() {
			cols = append(cols, col)
		}
	}
	return cols, nil
}

// SaveSnapshot writes every collection of snap.
func (c *Cache) SaveSnapshot(ctx context.Context, snap model.Snapshot) error {
	if err := c.Save(ctx, model.CollectionProducts, snap.Products); err != nil {
		return err
	}
	if err := c.Save(ctx, model.CollectionMovements, snap.Movements); err != nil {
		return err
	}
	if err := c.Save(ctx, model.CollectionSales, snap.Sales); err != nil {
		return err
	}
	return c.Save(ctx, model.CollectionSettings, snap.Settings)
}

// LoadSnapshot reads every collection. found is true when at least one
// collection was cached; missing collections stay empty, and missing
// settings fall back to model.DefaultSettings.
func (c *Cache) LoadSnapshot(ctx context.Context) (model.Snapshot, bool, error) {
	var (
		snap   model.Snapshot
		cached bool
	)
	targets := []struct {
		col model.Collection
		v   any
	}{
		{model.CollectionProducts, &snap.Products},
		{model.CollectionMovements, &snap.Movements},
		{model.CollectionSales, &snap.Sales},
		{model.CollectionSettings, &snap.Settings},
	}
	settingsFound := false
	for _, tgt := range targets {
		found, err := c.Load(ctx, tgt.col, tgt.v)
		if err != nil {
			return model.Snapshot{}, false, err
		}
		if found {
			cached = true
			if tgt.col == model.CollectionSettings {
				settingsFound = true
			}
		}
	}
	if !settingsFound {
		snap.Settings = model.DefaultSettings()
	}
	return snap, cached, nil
}
