package lru

import (
	"context"
	"fmt"
	"math"
	"time"

	storagelru "github.com/wolfeidau/storage-lru"
	"github.com/wolfeidau/storage-lru/telemetry"
)

// Purge evicts items until spaceNeeded bytes plus the purge factor's
// padding have been freed, or nothing evictable is left. Sizes are those of
// the serialized records. Each attempt first indexes more of the backend,
// so a cache that has seen few keys still finds the best candidates.
//
// Purge fails with storagelru.ErrNotEnoughSpace when less than spaceNeeded
// was freed. Only one purge runs at a time.
func (c *Cache) Purge(ctx context.Context, spaceNeeded int) error {
	c.purgeMu.Lock()
	defer c.purgeMu.Unlock()

	start := time.Now()
	padding := int(math.Round(float64(spaceNeeded) * c.config.PurgeFactor))
	target := spaceNeeded + padding
	now := c.unixNow()

	freed := 0
	var purged []string
	for attempt := 1; attempt <= c.config.MaxPurgeAttempts && freed < target; attempt++ {
		limit := c.index.Len() + attempt*c.config.PurgeLoadIncrease
		if err := c.index.Populate(ctx, limit); err != nil {
			c.logger.Warn("growing index for purge", "attempt", attempt, "error", err)
		}

		candidates := c.index.Sorted(c.config.PurgeComparator, now)
		c.logger.Debug("purge attempt", "attempt", attempt, "candidates", len(candidates), "freed", freed, "target", target)
		if len(candidates) == 0 {
			break
		}

		for _, rec := range candidates {
			if freed >= target {
				break
			}
			if err := c.backend.Remove(ctx, rec.Key); err != nil {
				c.logger.Warn("evicting item", "key", c.deprefix(rec.Key), "error", err)
				continue
			}
			c.index.Remove(rec.Key)
			freed += rec.Size
			purged = append(purged, c.deprefix(rec.Key))
		}
	}

	if c.config.PurgedFunc != nil && len(purged) > 0 {
		fn := c.config.PurgedFunc
		c.background(func() { fn(purged) })
	}

	if freed < spaceNeeded {
		telemetry.RecordPurge(ctx, "not_enough_space", len(purged), int64(freed), time.Since(start))
		c.logger.Info("purge could not free enough space", "needed", spaceNeeded, "freed", freed, "evicted", len(purged))
		return storagelru.NewError(storagelru.CodeNotEnoughSpace, fmt.Sprintf("still need %d", target-freed-padding), nil)
	}

	telemetry.RecordPurge(ctx, "success", len(purged), int64(freed), time.Since(start))
	c.logger.Info("purge complete", "needed", spaceNeeded, "freed", freed, "evicted", len(purged))
	return nil
}
