package store

import "context"

// KV is the storage contract consumed by the queue and cache.
//
// Get reports found=false (and no error) for a missing key. Set replaces the
// whole value atomically. Delete of a missing key is not an error.
type KV interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

var (
	_ KV = (*Store)(nil)
	_ KV = (*Memory)(nil)
)
