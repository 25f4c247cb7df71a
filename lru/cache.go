// Package lru implements a size-bounded cache over any key-value backend.
// Every item carries HTTP Cache-Control style freshness metadata; when the
// backend runs out of room the least valuable items are purged.
package lru

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	storagelru "github.com/wolfeidau/storage-lru"
	"github.com/wolfeidau/storage-lru/backend"
	"github.com/wolfeidau/storage-lru/index"
	"github.com/wolfeidau/storage-lru/telemetry"
)

// GetOptions controls how Get decodes a value.
type GetOptions struct {
	// JSON decodes the stored value into Item.JSON.
	JSON bool
}

// SetOptions controls how Set stores a value.
type SetOptions struct {
	// CacheControl is required and must carry a positive max-age,
	// e.g. "max-age=300,stale-while-revalidate=600".
	CacheControl string
	// JSON encodes the value as JSON before storing it.
	JSON bool
	// Priority is the eviction priority. Items with a larger value are
	// purged first. Zero means storagelru.DefaultPriority.
	Priority int
}

// Item is a value read from the cache.
type Item struct {
	// Value is the stored value as written.
	Value []byte
	// JSON holds the decoded value when GetOptions.JSON was set.
	JSON any
	// Stale is true when the item is past its max-age but still inside its
	// stale-while-revalidate window.
	Stale bool
}

// Cache is an LRU-style cache layered on a backend.Backend.
type Cache struct {
	backend backend.Backend
	index   *index.Index
	config  Config
	logger  *slog.Logger
	now     func() time.Time
	stats   counters

	purgeMu       sync.Mutex
	revalidations singleflight.Group
	wg            sync.WaitGroup

	stateMu      sync.Mutex
	enabled      bool
	closed       bool
	recheckTimer *time.Timer
	recheckGen   uint64
}

// New creates a cache over b. The index starts empty and is filled as keys
// are used or a purge needs it.
func New(b backend.Backend, cfg Config) *Cache {
	cfg = cfg.withDefaults()
	logger := cfg.Logger.With("component", "storage-lru", "instance", uuid.NewString())

	return &Cache{
		backend: b,
		index: index.New(b, cfg.KeyPrefix,
			index.WithFetchConcurrency(cfg.FetchConcurrency),
			index.WithLogger(logger),
		),
		config:  cfg,
		logger:  logger,
		now:     time.Now,
		enabled: true,
	}
}

func (c *Cache) prefix(key string) string {
	return c.config.KeyPrefix + key
}

func (c *Cache) deprefix(key string) string {
	return strings.TrimPrefix(key, c.config.KeyPrefix)
}

func (c *Cache) unixNow() int64 {
	return c.now().Unix()
}

// Get reads key. A missing or truly stale item is reported as found=false
// with a nil error. A stale item is returned with Item.Stale set and, if a
// RevalidateFunc is configured, refreshed in the background.
func (c *Cache) Get(ctx context.Context, key string, opts GetOptions) (Item, bool, error) {
	if key == "" {
		return Item{}, false, storagelru.NewError(storagelru.CodeInvalidKey, "", nil)
	}

	pk := c.prefix(key)
	raw, err := c.backend.Get(ctx, pk)
	if err != nil || len(raw) == 0 {
		if err != nil && !errors.Is(err, backend.ErrNotFound) {
			c.logger.Debug("backend read failed, treating as miss", "key", key, "error", err)
		}
		c.stats.miss.Add(1)
		telemetry.RecordLookup(ctx, telemetry.LookupMiss)
		c.index.Remove(pk)
		return Item{}, false, nil
	}

	meta, value, err := storagelru.Parse(raw)
	if err != nil {
		return Item{}, false, c.deserializeError(ctx, err)
	}

	item := Item{Value: value}
	if opts.JSON {
		if err := json.Unmarshal(value, &item.JSON); err != nil {
			return Item{}, false, c.deserializeError(ctx, err)
		}
	}

	now := c.unixNow()
	if meta.IsTrulyStale(now) {
		c.stats.miss.Add(1)
		telemetry.RecordLookup(ctx, telemetry.LookupMiss)
		if err := c.remove(ctx, pk); err != nil {
			c.logger.Warn("removing truly stale item", "key", key, "error", err)
		}
		return Item{}, false, nil
	}

	c.stats.hit.Add(1)
	rec := c.touch(ctx, pk, meta, value, now)

	if rec.IsExpired(now) {
		item.Stale = true
		c.stats.stale.Add(1)
		telemetry.RecordLookup(ctx, telemetry.LookupStale)
		c.revalidate(ctx, key, rec, opts.JSON)
	} else {
		telemetry.RecordLookup(ctx, telemetry.LookupHit)
	}

	return item, true, nil
}

// touch bumps the access time of an item in the index and, best effort, in
// the backend. The index is updated even when the write fails.
func (c *Cache) touch(ctx context.Context, pk string, meta storagelru.Meta, value []byte, now int64) index.Record {
	meta.Access = now
	raw, err := storagelru.Format(meta, value)
	if err != nil {
		return c.index.Update(pk, index.PatchFromMeta(meta))
	}
	meta.Size = len(raw)
	rec := c.index.Update(pk, index.PatchFromMeta(meta))

	if err := c.backend.Set(ctx, pk, raw); err != nil {
		c.logger.Warn("updating access time", "key", c.deprefix(pk), "error", err)
	}
	return rec
}

func (c *Cache) deserializeError(ctx context.Context, err error) error {
	c.stats.error.Add(1)
	telemetry.RecordLookup(ctx, telemetry.LookupError)
	return storagelru.NewError(storagelru.CodeDeserialize, err.Error(), err)
}

// Set stores value under key with the freshness given by
// opts.CacheControl. When the backend is full the cache purges and retries
// once. When the backend refuses writes while holding no keys at all the
// cache disables itself and Set reports storagelru.ErrDisabled.
func (c *Cache) Set(ctx context.Context, key string, value any, opts SetOptions) error {
	if key == "" {
		return storagelru.NewError(storagelru.CodeInvalidKey, "", nil)
	}
	if !c.Enabled() {
		return storagelru.NewError(storagelru.CodeDisabled, "", nil)
	}

	cc := storagelru.ParseCacheControl(opts.CacheControl)
	if !cc.Valid() {
		return storagelru.NewError(storagelru.CodeCacheControl, "", nil)
	}

	priority := opts.Priority
	if priority == 0 {
		priority = storagelru.DefaultPriority
	}
	now := c.unixNow()
	meta := storagelru.Meta{
		Version:  storagelru.CurrentVersion,
		Access:   now,
		Expires:  now + cc.MaxAge,
		MaxAge:   cc.MaxAge,
		Stale:    cc.StaleWhileRevalidate,
		Priority: priority,
	}

	raw, err := serialize(meta, value, opts.JSON)
	if err != nil {
		return storagelru.NewError(storagelru.CodeSerialize, "", err)
	}
	meta.Size = len(raw)

	pk := c.prefix(key)
	if err := c.backend.Set(ctx, pk, raw); err != nil {
		return c.recoverWrite(ctx, pk, raw, meta, err)
	}
	c.index.Update(pk, index.PatchFromMeta(meta))
	return nil
}

// recoverWrite handles a failed Set: an empty backend that refuses writes
// disables the cache, otherwise space is purged and the write retried once.
func (c *Cache) recoverWrite(ctx context.Context, pk string, raw []byte, meta storagelru.Meta, cause error) error {
	keys, err := c.backend.Keys(ctx, 1)
	if err != nil || len(keys) == 0 {
		c.disable(ctx)
		return storagelru.NewError(storagelru.CodeDisabled, "", cause)
	}

	c.logger.Debug("write failed, purging", "key", c.deprefix(pk), "size", len(raw), "error", cause)
	if err := c.Purge(ctx, len(raw)); err != nil {
		return storagelru.NewError(storagelru.CodeNotEnoughSpace, "", err)
	}

	if err := c.backend.Set(ctx, pk, raw); err != nil {
		return storagelru.NewError(storagelru.CodeNotEnoughSpace, "", err)
	}
	c.index.Update(pk, index.PatchFromMeta(meta))
	return nil
}

// Remove deletes key from the backend and the index.
func (c *Cache) Remove(ctx context.Context, key string) error {
	if key == "" {
		return storagelru.NewError(storagelru.CodeInvalidKey, "", nil)
	}
	return c.remove(ctx, c.prefix(key))
}

func (c *Cache) remove(ctx context.Context, pk string) error {
	if err := c.backend.Remove(ctx, pk); err != nil {
		return storagelru.NewError(storagelru.CodeInvalidKey, c.deprefix(pk), err)
	}
	c.index.Remove(pk)
	return nil
}

// Stats returns a snapshot of the hit, miss and revalidation counters.
func (c *Cache) Stats() Stats {
	return c.stats.snapshot()
}

// Usage indexes every key under the prefix and reports the item count and
// total stored size.
func (c *Cache) Usage(ctx context.Context) (index.Usage, error) {
	if err := c.index.Populate(ctx, 0); err != nil {
		return index.Usage{}, err
	}
	return c.index.Usage(), nil
}

// Keys returns up to limit keys under the prefix, in backend order and with
// the prefix removed. A limit <= 0 returns every key.
func (c *Cache) Keys(ctx context.Context, limit int) ([]string, error) {
	if c.config.KeyPrefix == "" {
		return c.backend.Keys(ctx, limit)
	}

	all, err := c.backend.Keys(ctx, 0)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, k := range all {
		if !strings.HasPrefix(k, c.config.KeyPrefix) {
			continue
		}
		keys = append(keys, c.deprefix(k))
		if limit > 0 && len(keys) >= limit {
			break
		}
	}
	return keys, nil
}

// NumItems returns the number of keys in the backend, including keys
// outside the prefix.
func (c *Cache) NumItems(ctx context.Context) (int, error) {
	keys, err := c.backend.Keys(ctx, 0)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// serialize encodes value and frames it with meta.
func serialize(meta storagelru.Meta, value any, asJSON bool) ([]byte, error) {
	var payload []byte
	switch {
	case asJSON:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		payload = b
	default:
		switch v := value.(type) {
		case string:
			payload = []byte(v)
		case []byte:
			payload = v
		default:
			return nil, fmt.Errorf("unsupported value type %T", value)
		}
	}
	return storagelru.Format(meta, payload)
}
