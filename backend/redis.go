package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultScanCount = 100

// Redis implements Backend on a Redis database. All keys live under a
// namespace prefix so the cache can share a database with other data;
// Keys only ever reports keys inside the namespace, with the prefix removed.
type Redis struct {
	client    redis.UniversalClient
	namespace string
	scanCount int64
}

// NewRedis creates a Redis backend. The client is owned by the caller.
func NewRedis(client redis.UniversalClient, namespace string) *Redis {
	return &Redis{
		client:    client,
		namespace: namespace,
		scanCount: defaultScanCount,
	}
}

func (r *Redis) buildKey(key string) string {
	return r.namespace + key
}

// Get retrieves the value stored at key.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.buildKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Set stores value at key with no expiry; expiry is the cache's concern.
func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.buildKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Remove deletes the value at key.
func (r *Redis) Remove(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.buildKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Keys pages through the namespace with SCAN until limit keys are
// collected. SCAN may report a key more than once; duplicates are dropped.
func (r *Redis) Keys(ctx context.Context, limit int) ([]string, error) {
	pattern := escapeGlob(r.namespace) + "*"
	seen := make(map[string]struct{})

	var keys []string
	var cursor uint64
	for {
		batch, next, err := r.client.Scan(ctx, cursor, pattern, r.scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}
		for _, k := range batch {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, strings.TrimPrefix(k, r.namespace))
			if full(len(keys), limit) {
				return keys, nil
			}
		}
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// escapeGlob quotes the characters SCAN MATCH treats as wildcards.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}

var _ Backend = (*Redis)(nil)
