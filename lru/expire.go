package lru

import (
	"context"
)

// RemoveExpired indexes the whole prefix and removes every item past both
// its max-age and stale-while-revalidate windows. Bad records are left for
// Purge. It returns the number of items removed and their stored size.
func (c *Cache) RemoveExpired(ctx context.Context) (int, int64, error) {
	if err := c.index.Populate(ctx, 0); err != nil {
		return 0, 0, err
	}

	now := c.unixNow()
	var (
		removed int
		freed   int64
	)
	for _, rec := range c.index.Sorted(c.config.PurgeComparator, now) {
		if rec.Bad || !rec.IsTrulyStale(now) {
			continue
		}
		if err := c.remove(ctx, rec.Key); err != nil {
			c.logger.Warn("removing expired item", "key", c.deprefix(rec.Key), "error", err)
			continue
		}
		removed++
		freed += int64(rec.Size)
	}

	if removed > 0 {
		c.logger.Debug("removed expired items", "count", removed, "freed", freed)
	}
	return removed, freed, nil
}
