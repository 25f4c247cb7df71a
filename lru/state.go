package lru

import (
	"context"
	"time"

	"github.com/wolfeidau/storage-lru/telemetry"
)

// Enabled reports whether the cache accepts writes.
func (c *Cache) Enabled() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.enabled
}

// disable stops the cache accepting writes and, when a positive recheck
// delay is configured, schedules re-enabling it. A pending re-enable is replaced,
// so the delay always counts from the latest disablement.
func (c *Cache) disable(ctx context.Context) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.enabled {
		c.enabled = false
		telemetry.RecordStateTransition(ctx, "disabled")
		c.logger.Warn("backend refuses writes, cache disabled", "recheck_delay", c.config.RecheckDelay)
	}

	if c.config.RecheckDelay <= 0 || c.closed {
		return
	}
	if c.recheckTimer != nil {
		c.recheckTimer.Stop()
	}
	c.recheckGen++
	gen := c.recheckGen
	c.recheckTimer = time.AfterFunc(c.config.RecheckDelay, func() {
		c.reenable(gen)
	})
}

// reenable flips the cache back on unless a later disablement superseded
// the timer that called it.
func (c *Cache) reenable(gen uint64) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if gen != c.recheckGen || c.closed {
		return
	}
	c.recheckTimer = nil
	if !c.enabled {
		c.enabled = true
		telemetry.RecordStateTransition(context.Background(), "enabled")
		c.logger.Info("cache re-enabled")
	}
}

// background runs fn on a goroutine tracked by Close. It reports false,
// without running fn, once the cache is closed.
func (c *Cache) background(fn func()) bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.closed {
		return false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
	return true
}

// Close cancels a pending re-enable and waits for background revalidations
// and purge notifications to finish. The backend is not closed.
func (c *Cache) Close() {
	c.stateMu.Lock()
	c.closed = true
	if c.recheckTimer != nil {
		c.recheckTimer.Stop()
		c.recheckTimer = nil
	}
	c.stateMu.Unlock()

	c.wg.Wait()
}
