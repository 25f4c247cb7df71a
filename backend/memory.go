package backend

import (
	"context"
	"slices"
	"sync"
)

// Memory implements Backend in process memory. Keys enumerate in insertion
// order. It can simulate a full or unavailable store, which makes it the
// backend of choice for tests.
type Memory struct {
	mu       sync.RWMutex
	order    []string
	data     map[string][]byte
	used     int
	maxBytes int
	disabled bool
	failFunc func(key string, value []byte) error
}

// MemoryOption configures a Memory backend.
type MemoryOption func(*Memory)

// WithMemoryMaxBytes caps the total size of stored values. Writes that would
// exceed the cap fail with ErrQuotaExceeded.
func WithMemoryMaxBytes(n int) MemoryOption {
	return func(m *Memory) {
		m.maxBytes = n
	}
}

// WithFailFunc installs a hook consulted before every write. A non-nil error
// from the hook fails the write without modifying the store.
func WithFailFunc(fn func(key string, value []byte) error) MemoryOption {
	return func(m *Memory) {
		m.failFunc = fn
	}
}

// NewMemory creates an empty in-memory backend.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{data: make(map[string][]byte)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewMemoryFrom creates an in-memory backend seeded with items, inserted in
// the order given by keys.
func NewMemoryFrom(keys []string, items map[string][]byte, opts ...MemoryOption) *Memory {
	m := NewMemory(opts...)
	for _, k := range keys {
		v, ok := items[k]
		if !ok {
			continue
		}
		m.put(k, v)
	}
	return m
}

// SetDisabled makes every subsequent write fail with ErrUnavailable until
// re-enabled, mimicking browser storage in private mode.
func (m *Memory) SetDisabled(disabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disabled = disabled
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// Used returns the total size of stored values.
func (m *Memory) Used() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.used
}

// Get retrieves the value stored at key.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(v), nil
}

// Set stores value at key.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disabled {
		return ErrUnavailable
	}
	if m.failFunc != nil {
		if err := m.failFunc(key, value); err != nil {
			return err
		}
	}
	if m.maxBytes > 0 {
		used := m.used - len(m.data[key]) + len(value)
		if used > m.maxBytes {
			return ErrQuotaExceeded
		}
	}

	m.put(key, slices.Clone(value))
	return nil
}

func (m *Memory) put(key string, value []byte) {
	old, exists := m.data[key]
	if !exists {
		m.order = append(m.order, key)
	}
	m.used += len(value) - len(old)
	m.data[key] = value
}

// Remove deletes the value at key.
func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.data[key]
	if !ok {
		return nil
	}
	delete(m.data, key)
	m.used -= len(old)
	if i := slices.Index(m.order, key); i >= 0 {
		m.order = slices.Delete(m.order, i, i+1)
	}
	return nil
}

// Keys returns up to limit keys in insertion order.
func (m *Memory) Keys(_ context.Context, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.order)
	if limit > 0 && limit < n {
		n = limit
	}
	return slices.Clone(m.order[:n]), nil
}

var _ Backend = (*Memory)(nil)
