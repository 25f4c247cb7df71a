// Package index keeps the in-memory metadata for the items a cache has stored
// in its backend. The index is derived state: it may cover only part of the
// backend and is grown on demand by Populate.
package index

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wolfeidau/storage-lru/backend"
)

// DefaultFetchConcurrency bounds the number of concurrent backend reads
// issued by Populate.
const DefaultFetchConcurrency = 16

// Usage summarises the indexed records.
type Usage struct {
	Count int
	Size  int64
}

type entry struct {
	rec Record
	seq uint64
}

// Index maps backend keys to their metadata records. It is safe for
// concurrent use; backend calls are never made while holding the lock.
type Index struct {
	backend     backend.Backend
	prefix      string
	concurrency int
	logger      *slog.Logger

	mu      sync.RWMutex
	entries map[string]entry
	nextSeq uint64
}

// Option configures an Index.
type Option func(*Index)

// WithFetchConcurrency sets how many values Populate reads at once.
func WithFetchConcurrency(n int) Option {
	return func(idx *Index) {
		if n > 0 {
			idx.concurrency = n
		}
	}
}

// WithLogger sets the logger for the index.
func WithLogger(logger *slog.Logger) Option {
	return func(idx *Index) {
		idx.logger = logger
	}
}

// New creates an empty index over the keys of b that start with prefix.
func New(b backend.Backend, prefix string, opts ...Option) *Index {
	idx := &Index{
		backend:     b,
		prefix:      prefix,
		concurrency: DefaultFetchConcurrency,
		logger:      slog.Default(),
		entries:     make(map[string]entry),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Populate makes sure the first limit backend keys are indexed, reading the
// value of every key not yet known. Keys outside the prefix are skipped, as
// are keys that vanish or fail to read while the scan is in flight. A limit
// <= 0 scans the whole backend. Populate returns once every read it started
// has finished.
func (idx *Index) Populate(ctx context.Context, limit int) error {
	keys, err := idx.backend.Keys(ctx, limit)
	if err != nil {
		return fmt.Errorf("listing keys: %w", err)
	}

	var pending []string
	idx.mu.RLock()
	for _, k := range keys {
		if !strings.HasPrefix(k, idx.prefix) {
			continue
		}
		if _, ok := idx.entries[k]; ok {
			continue
		}
		pending = append(pending, k)
	}
	idx.mu.RUnlock()

	if len(pending) == 0 {
		return nil
	}

	records := make([]*Record, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.concurrency)
	for i, k := range pending {
		g.Go(func() error {
			raw, err := idx.backend.Get(gctx, k)
			if err != nil {
				if !errors.Is(err, backend.ErrNotFound) {
					idx.logger.Debug("skipping unreadable key", "key", k, "error", err)
				}
				return nil
			}
			rec := RecordFor(k, raw)
			records[i] = &rec
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	added := 0
	idx.mu.Lock()
	for _, rec := range records {
		if rec == nil {
			continue
		}
		// an Update while the scan was in flight carries fresher state
		if _, ok := idx.entries[rec.Key]; ok {
			continue
		}
		idx.insertLocked(*rec)
		added++
	}
	total := len(idx.entries)
	idx.mu.Unlock()

	idx.logger.Debug("index populated", "limit", limit, "scanned", len(keys), "added", added, "indexed", total)
	return nil
}

// Update merges p into the record for key and returns the result. A missing
// record is created from the patch alone.
func (idx *Index) Update(key string, p Patch) Record {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if e, ok := idx.entries[key]; ok {
		e.rec = p.apply(e.rec)
		idx.entries[key] = e
		return e.rec
	}

	rec := p.apply(Record{Key: key})
	idx.insertLocked(rec)
	return rec
}

func (idx *Index) insertLocked(rec Record) {
	idx.entries[rec.Key] = entry{rec: rec, seq: idx.nextSeq}
	idx.nextSeq++
}

// Remove drops the record for key. Removing an unknown key is a no-op.
func (idx *Index) Remove(key string) {
	idx.mu.Lock()
	delete(idx.entries, key)
	idx.mu.Unlock()
}

// Get returns the record for key.
func (idx *Index) Get(key string) (Record, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.entries[key]
	return e.rec, ok
}

// Len returns the number of indexed records.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Usage returns the record count and the summed record size.
func (idx *Index) Usage() Usage {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	u := Usage{Count: len(idx.entries)}
	for _, e := range idx.entries {
		u.Size += int64(e.rec.Size)
	}
	return u
}

// Sorted returns a snapshot of every record, most evictable first according
// to c. Records c considers equal keep the order they were indexed in.
func (idx *Index) Sorted(c Comparator, now int64) []Record {
	idx.mu.RLock()
	snapshot := make([]entry, 0, len(idx.entries))
	for _, e := range idx.entries {
		snapshot = append(snapshot, e)
	}
	idx.mu.RUnlock()

	slices.SortFunc(snapshot, func(a, b entry) int {
		if n := c(now, a.rec, b.rec); n != 0 {
			return n
		}
		return cmp.Compare(a.seq, b.seq)
	})

	records := make([]Record, len(snapshot))
	for i, e := range snapshot {
		records[i] = e.rec
	}
	return records
}
