package backend

import (
	"context"
	"errors"
	"time"

	"github.com/wolfeidau/storage-lru/telemetry"
)

// InstrumentedBackend wraps a Backend with metrics recording.
type InstrumentedBackend struct {
	backend Backend
	name    string
}

// NewInstrumentedBackend creates a new instrumented backend wrapper.
func NewInstrumentedBackend(b Backend, name string) *InstrumentedBackend {
	return &InstrumentedBackend{backend: b, name: name}
}

func (ib *InstrumentedBackend) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	data, err := ib.backend.Get(ctx, key)
	telemetry.RecordBackendOp(ctx, ib.name, "get", outcomeFromError(err), time.Since(start), int64(len(data)))
	return data, err
}

func (ib *InstrumentedBackend) Set(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	err := ib.backend.Set(ctx, key, value)
	var n int64
	if err == nil {
		n = int64(len(value))
	}
	telemetry.RecordBackendOp(ctx, ib.name, "set", outcomeFromError(err), time.Since(start), n)
	return err
}

func (ib *InstrumentedBackend) Remove(ctx context.Context, key string) error {
	start := time.Now()
	err := ib.backend.Remove(ctx, key)
	telemetry.RecordBackendOp(ctx, ib.name, "remove", outcomeFromError(err), time.Since(start), 0)
	return err
}

func (ib *InstrumentedBackend) Keys(ctx context.Context, limit int) ([]string, error) {
	start := time.Now()
	keys, err := ib.backend.Keys(ctx, limit)
	telemetry.RecordBackendOp(ctx, ib.name, "keys", outcomeFromError(err), time.Since(start), 0)
	return keys, err
}

// Unwrap returns the underlying backend.
func (ib *InstrumentedBackend) Unwrap() Backend {
	return ib.backend
}

func outcomeFromError(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	default:
		return "error"
	}
}

var _ Backend = (*InstrumentedBackend)(nil)
