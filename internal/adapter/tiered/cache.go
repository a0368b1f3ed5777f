// Package tiered layers the in-process outcome cache over the shared one.
package tiered

import (
	"context"
	"log/slog"
	"time"

	"github.com/Strob0t/simgate/internal/port/cache"
)

var _ cache.Cache = (*Cache)(nil)

// Cache reads L1 first and falls back to L2, backfilling L1 on an L2 hit.
// L2 is best effort: its failures are logged and read as misses, so a NATS
// outage only costs cache hits.
type Cache struct {
	l1       cache.Cache
	l2       cache.Cache
	backfill time.Duration
}

// New creates a tiered cache. backfill is the L1 lifetime of entries copied
// up from L2.
func New(l1, l2 cache.Cache, backfill time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, backfill: backfill}
}

// Get checks L1, then L2.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, err := c.l1.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return val, true, nil
	}

	val, found, err = c.l2.Get(ctx, key)
	if err != nil {
		slog.Warn("l2 cache read failed", "key", key, "error", err)
		return nil, false, nil
	}
	if !found {
		return nil, false, nil
	}
	_ = c.l1.Set(ctx, key, val, c.backfill)
	return val, true, nil
}

// Set writes L1 and then L2. Only an L1 failure is returned.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l1.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if err := c.l2.Set(ctx, key, value, ttl); err != nil {
		slog.Warn("l2 cache write failed", "key", key, "error", err)
	}
	return nil
}

// Delete removes key from both levels.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.l1.Delete(ctx, key); err != nil {
		return err
	}
	if err := c.l2.Delete(ctx, key); err != nil {
		slog.Warn("l2 cache delete failed", "key", key, "error", err)
	}
	return nil
}
