package lru

import (
	"context"

	storagelru "github.com/wolfeidau/storage-lru"
	"github.com/wolfeidau/storage-lru/index"
	"github.com/wolfeidau/storage-lru/telemetry"
)

// revalidate refreshes a stale item in the background. Concurrent
// revalidations of the same key share one call to the RevalidateFunc.
func (c *Cache) revalidate(ctx context.Context, key string, rec index.Record, asJSON bool) {
	if c.config.RevalidateFunc == nil {
		return
	}

	ctx = context.WithoutCancel(ctx)
	c.background(func() {
		_, _, _ = c.revalidations.Do(key, func() (any, error) {
			c.doRevalidate(ctx, key, rec, asJSON)
			return nil, nil
		})
	})
}

func (c *Cache) doRevalidate(ctx context.Context, key string, rec index.Record, asJSON bool) {
	value, err := c.config.RevalidateFunc(ctx, key)
	if err != nil {
		c.revalidateFailed(ctx, key, err)
		return
	}

	// access, maxAge, stale and priority carry over; only expiry moves
	now := c.unixNow()
	meta := storagelru.Meta{
		Version:  storagelru.CurrentVersion,
		Access:   rec.Access,
		Expires:  now + rec.MaxAge,
		MaxAge:   rec.MaxAge,
		Stale:    rec.Stale,
		Priority: rec.Priority,
	}

	raw, err := serialize(meta, value, asJSON)
	if err != nil {
		c.revalidateFailed(ctx, key, err)
		return
	}

	pk := c.prefix(key)
	if err := c.backend.Set(ctx, pk, raw); err != nil {
		c.revalidateFailed(ctx, key, err)
		return
	}
	meta.Size = len(raw)
	c.index.Update(pk, index.PatchFromMeta(meta))

	c.stats.revalidateSuccess.Add(1)
	telemetry.RecordRevalidation(ctx, "success")
	c.logger.Debug("revalidated", "key", key, "expires", meta.Expires)
}

func (c *Cache) revalidateFailed(ctx context.Context, key string, cause error) {
	c.stats.revalidateFailure.Add(1)
	telemetry.RecordRevalidation(ctx, "failure")
	c.logger.Debug("revalidation failed", "key", key, "error", cause)

	if c.config.RevalidateErrorFunc != nil {
		c.config.RevalidateErrorFunc(key, storagelru.NewError(storagelru.CodeRevalidate, cause.Error(), cause))
	}
}
