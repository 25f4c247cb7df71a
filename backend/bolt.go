package backend

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

const defaultBoltBucket = "items"

// Bolt implements Backend on a single bbolt bucket. Keys enumerate in byte
// order.
type Bolt struct {
	db       *bbolt.DB
	bucket   []byte
	maxBytes int64
	noSync   bool
	logger   *slog.Logger

	mu   sync.Mutex
	used int64
}

// BoltOption configures a Bolt backend.
type BoltOption func(*Bolt)

// WithBoltBucket sets the bucket items are stored in. Default: "items".
func WithBoltBucket(name string) BoltOption {
	return func(b *Bolt) {
		b.bucket = []byte(name)
	}
}

// WithBoltMaxBytes caps the total size of stored values. Writes that would
// exceed the cap fail with ErrQuotaExceeded.
func WithBoltMaxBytes(n int64) BoltOption {
	return func(b *Bolt) {
		b.maxBytes = n
	}
}

// WithNoSync disables fsync per transaction.
// WARNING: This improves write performance but risks data loss on crash.
// Use only for testing or benchmarking, never in production.
func WithNoSync(noSync bool) BoltOption {
	return func(b *Bolt) {
		b.noSync = noSync
	}
}

// WithLogger sets the logger for the backend.
func WithLogger(logger *slog.Logger) BoltOption {
	return func(b *Bolt) {
		b.logger = logger
	}
}

// OpenBolt opens (creating if needed) a bbolt database at path.
func OpenBolt(path string, opts ...BoltOption) (*Bolt, error) {
	b := &Bolt{
		bucket: []byte(defaultBoltBucket),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
		NoSync:  b.noSync,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	b.db = db

	err = db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(b.bucket)
		if err != nil {
			return fmt.Errorf("creating bucket %s: %w", b.bucket, err)
		}
		return bucket.ForEach(func(_, v []byte) error {
			b.used += int64(len(v))
			return nil
		})
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	b.logger.Debug("opened bolt backend", "path", path, "bucket", string(b.bucket), "used", b.used)
	return b, nil
}

// Close closes the database and releases resources.
func (b *Bolt) Close() error {
	if b.db == nil {
		return nil
	}
	b.logger.Debug("closing bolt backend")
	return b.db.Close()
}

// Get retrieves the value stored at key.
func (b *Bolt) Get(_ context.Context, key string) ([]byte, error) {
	var data []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		val := tx.Bucket(b.bucket).Get([]byte(key))
		if val == nil {
			return ErrNotFound
		}
		data = bytes.Clone(val)
		return nil
	})
	return data, err
}

// Set stores value at key.
func (b *Bolt) Set(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var delta int64
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		delta = int64(len(value) - len(bucket.Get([]byte(key))))
		if b.maxBytes > 0 && b.used+delta > b.maxBytes {
			return ErrQuotaExceeded
		}
		if err := bucket.Put([]byte(key), value); err != nil {
			return fmt.Errorf("putting item: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	b.used += delta
	return nil
}

// Remove deletes the value at key.
func (b *Bolt) Remove(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var size int64
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		size = int64(len(bucket.Get([]byte(key))))
		return bucket.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	b.used -= size
	return nil
}

// Keys returns up to limit keys in byte order.
func (b *Bolt) Keys(_ context.Context, limit int) ([]string, error) {
	var keys []string
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(b.bucket).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			keys = append(keys, string(k))
			if full(len(keys), limit) {
				break
			}
		}
		return nil
	})
	return keys, err
}

// Used returns the total size of stored values.
func (b *Bolt) Used() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

var _ Backend = (*Bolt)(nil)
