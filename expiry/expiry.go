// Package expiry runs periodic maintenance on a cache: dropping items that
// can no longer be served and purging down to a size limit.
package expiry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wolfeidau/storage-lru/lru"
)

// Config holds expiration configuration.
type Config struct {
	// MaxSize is the maximum total stored size of the cache in bytes.
	// When exceeded, the cache is purged of the difference.
	// Zero means no size limit.
	MaxSize int64

	// CheckInterval is how often to run expiration checks.
	// Default is 1 hour.
	CheckInterval time.Duration

	// Logger for expiration events.
	Logger *slog.Logger
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		MaxSize:       100 * 1024 * 1024, // 100 MB
		CheckInterval: 1 * time.Hour,
		Logger:        slog.Default(),
	}
}

// Manager expires truly stale items and keeps a cache under its size limit.
type Manager struct {
	config Config
	cache  *lru.Cache
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	running bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewManager creates a new expiration manager.
func NewManager(cache *lru.Cache, cfg Config) *Manager {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 1 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Manager{
		config: cfg,
		cache:  cache,
		logger: cfg.Logger,
		now:    time.Now,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins background expiration checks.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped || m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.mu.Unlock()

	go m.run(ctx)
	return nil
}

// Stop stops background expiration checks.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running || m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()

	close(m.stopCh)
	<-m.doneCh
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	// Run immediately on start
	m.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}

// ExpireResult contains the results of an expiration run.
type ExpireResult struct {
	Expired    int           `json:"expired"`
	Evicted    int           `json:"evicted"`
	BytesFreed int64         `json:"bytes_freed"`
	Errors     int           `json:"errors"`
	Duration   time.Duration `json:"duration"`
}

// RunOnce performs a single expiration check.
func (m *Manager) RunOnce(ctx context.Context) *ExpireResult {
	start := m.now()
	result := &ExpireResult{}

	m.logger.Debug("starting expiration check")

	// Phase 1: items past their stale-while-revalidate window
	expired, freed, err := m.cache.RemoveExpired(ctx)
	if err != nil {
		m.logger.Error("failed to remove expired items", "error", err)
		result.Errors++
		return result
	}
	result.Expired = expired
	result.BytesFreed += freed

	// Phase 2: purge if over the size limit
	if m.config.MaxSize > 0 {
		m.enforceMaxSize(ctx, result)
	}

	result.Duration = m.now().Sub(start)

	if result.Expired > 0 || result.Evicted > 0 {
		m.logger.Info("expiration complete",
			"expired", result.Expired,
			"evicted", result.Evicted,
			"bytes_freed", result.BytesFreed,
			"duration", result.Duration,
		)
	} else {
		m.logger.Debug("expiration complete, nothing to expire")
	}

	return result
}

func (m *Manager) enforceMaxSize(ctx context.Context, result *ExpireResult) {
	before, err := m.cache.Usage(ctx)
	if err != nil {
		m.logger.Error("failed to measure cache usage", "error", err)
		result.Errors++
		return
	}
	if before.Size <= m.config.MaxSize {
		return // Under limit, nothing to do
	}

	if err := m.cache.Purge(ctx, int(before.Size-m.config.MaxSize)); err != nil {
		m.logger.Warn("purge could not reach size limit", "max_size", m.config.MaxSize, "error", err)
		result.Errors++
	}

	after, err := m.cache.Usage(ctx)
	if err != nil {
		result.Errors++
		return
	}
	result.Evicted = before.Count - after.Count
	result.BytesFreed += before.Size - after.Size
}
