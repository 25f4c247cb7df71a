package backend

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInstrumentedBackend_Get_NotFound(t *testing.T) {
	ib := NewInstrumentedBackend(NewMemory(), "memory")

	_, err := ib.Get(context.Background(), "nonexistent/key")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInstrumentedBackend_Set_QuotaExceeded(t *testing.T) {
	ib := NewInstrumentedBackend(NewMemory(WithMemoryMaxBytes(4)), "memory")

	err := ib.Set(context.Background(), "k", []byte("too large"))
	require.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestInstrumentedBackend_Unwrap(t *testing.T) {
	mem := NewMemory()
	ib := NewInstrumentedBackend(mem, "memory")
	require.Same(t, mem, ib.Unwrap())
}

func TestOutcomeFromError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "success"},
		{ErrNotFound, "not_found"},
		{fmt.Errorf("wrapped: %w", ErrNotFound), "not_found"},
		{ErrQuotaExceeded, "quota_exceeded"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, outcomeFromError(tt.err))
	}
}
