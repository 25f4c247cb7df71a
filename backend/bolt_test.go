package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBoltKeysByteOrder(t *testing.T) {
	b := newTestBolt(t)
	ctx := context.Background()

	for _, k := range []string{"c", "a", "b"} {
		require.NoError(t, b.Set(ctx, k, []byte(k)))
	}

	keys, err := b.Keys(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestBoltMaxBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lru.db")
	ctx := context.Background()

	b, err := OpenBolt(path, WithNoSync(true), WithBoltMaxBytes(10))
	require.NoError(t, err)

	require.NoError(t, b.Set(ctx, "a", []byte("123456")))
	require.ErrorIs(t, b.Set(ctx, "b", []byte("123456")), ErrQuotaExceeded)
	require.NoError(t, b.Set(ctx, "b", []byte("1234")))
	require.Equal(t, int64(10), b.Used())
	require.NoError(t, b.Close())

	reopened, err := OpenBolt(path, WithNoSync(true), WithBoltMaxBytes(10))
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	require.Equal(t, int64(10), reopened.Used())

	require.NoError(t, reopened.Remove(ctx, "a"))
	require.Equal(t, int64(4), reopened.Used())
	require.NoError(t, reopened.Set(ctx, "c", []byte("123456")))
}

func TestBoltSeparateBuckets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lru.db")
	ctx := context.Background()

	first, err := OpenBolt(path, WithNoSync(true), WithBoltBucket("one"))
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "k", []byte("v")))
	require.NoError(t, first.Close())

	second, err := OpenBolt(path, WithNoSync(true), WithBoltBucket("two"))
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	keys, err := second.Keys(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, keys)
}
