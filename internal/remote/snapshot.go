package remote

import (
	"context"
	"fmt"

	"github.com/roach88/stockpro/internal/model"
)

// FetchSnapshot reads every collection from r. Settings are only fetched
// when owner is set; missing settings fall back to model.DefaultSettings.
func FetchSnapshot(ctx context.Context, r Store, owner string) (model.Snapshot, error) {
	var (
		snap model.Snapshot
		err  error
	)
	if snap.Products, err = r.FetchProducts(ctx); err != nil {
		return model.Snapshot{}, fmt.Errorf("fetch snapshot: %w", err)
	}
	if snap.Movements, err = r.FetchMovements(ctx); err != nil {
		return model.Snapshot{}, fmt.Errorf("fetch snapshot: %w", err)
	}
	if snap.Sales, err = r.FetchSales(ctx); err != nil {
		return model.Snapshot{}, fmt.Errorf("fetch snapshot: %w", err)
	}
	snap.Settings = model.DefaultSettings()
	if owner != "" {
		s, err := r.FetchSettings(ctx, owner)
		if err != nil {
			return model.Snapshot{}, fmt.Errorf("fetch snapshot: %w", err)
		}
		if s != nil {
			snap.Settings = *s
		}
	}
	return snap, nil
}
