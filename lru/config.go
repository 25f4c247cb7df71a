package lru

import (
	"context"
	"log/slog"
	"time"

	"github.com/wolfeidau/storage-lru/index"
)

const (
	// DefaultPurgeFactor is the extra space purged, as a multiple of the
	// space asked for.
	DefaultPurgeFactor = 1.0

	// DefaultMaxPurgeAttempts is how many times a purge grows the index and
	// retries before giving up.
	DefaultMaxPurgeAttempts = 2

	// DefaultPurgeLoadIncrease is how many more keys each purge attempt
	// indexes, multiplied by the attempt number.
	DefaultPurgeLoadIncrease = 500
)

// RevalidateFunc fetches a fresh value for a stale item. key is the caller's
// key, without the configured prefix. The returned value is stored the same
// way Set stores values: string or []byte, or anything JSON-encodable when
// the triggering Get asked for JSON.
type RevalidateFunc func(ctx context.Context, key string) (any, error)

// Config holds cache configuration.
type Config struct {
	// KeyPrefix namespaces every key in the backend.
	KeyPrefix string

	// RecheckDelay is how long the cache stays disabled before optimistically
	// re-enabling itself. Zero or negative means never.
	RecheckDelay time.Duration

	// PurgeFactor is the extra space purged on top of the space needed,
	// as a multiple of it. Default is 1.
	PurgeFactor float64

	// MaxPurgeAttempts bounds the index-growing attempts per purge.
	// Default is 2.
	MaxPurgeAttempts int

	// PurgeLoadIncrease is the number of additional keys indexed per attempt.
	// Default is 500.
	PurgeLoadIncrease int

	// PurgedFunc, if set, receives the keys evicted by each purge. It runs on
	// its own goroutine.
	PurgedFunc func(keys []string)

	// PurgeComparator overrides the eviction order.
	// Default is index.DefaultComparator.
	PurgeComparator index.Comparator

	// RevalidateFunc, if set, is used to refresh stale items in the
	// background.
	RevalidateFunc RevalidateFunc

	// RevalidateErrorFunc, if set, is told about failed revalidations.
	RevalidateErrorFunc func(key string, err error)

	// FetchConcurrency bounds concurrent backend reads while indexing.
	FetchConcurrency int

	// Logger for cache events.
	Logger *slog.Logger
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		RecheckDelay:      -1,
		PurgeFactor:       DefaultPurgeFactor,
		MaxPurgeAttempts:  DefaultMaxPurgeAttempts,
		PurgeLoadIncrease: DefaultPurgeLoadIncrease,
		PurgeComparator:   index.DefaultComparator,
		FetchConcurrency:  index.DefaultFetchConcurrency,
		Logger:            slog.Default(),
	}
}

func (cfg Config) withDefaults() Config {
	if cfg.PurgeFactor <= 0 {
		cfg.PurgeFactor = DefaultPurgeFactor
	}
	if cfg.MaxPurgeAttempts <= 0 {
		cfg.MaxPurgeAttempts = DefaultMaxPurgeAttempts
	}
	if cfg.PurgeLoadIncrease <= 0 {
		cfg.PurgeLoadIncrease = DefaultPurgeLoadIncrease
	}
	if cfg.PurgeComparator == nil {
		cfg.PurgeComparator = index.DefaultComparator
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = index.DefaultFetchConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}
