package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedisNamespaceIsolation(t *testing.T) {
	r, mr := newTestRedis(t, "lru:")
	ctx := context.Background()

	require.NoError(t, mr.Set("other:key", "foreign"))
	require.NoError(t, r.Set(ctx, "mine", []byte("v")))

	keys, err := r.Keys(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"mine"}, keys)

	raw, err := mr.Get("lru:mine")
	require.NoError(t, err)
	require.Equal(t, "v", raw)
}

func TestRedisKeysLimit(t *testing.T) {
	r, _ := newTestRedis(t, "")
	r.scanCount = 2
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, r.Set(ctx, k, []byte(k)))
	}

	keys, err := r.Keys(ctx, 3)
	require.NoError(t, err)
	require.Len(t, keys, 3)

	all, err := r.Keys(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
}

func TestEscapeGlob(t *testing.T) {
	require.Equal(t, `lru:`, escapeGlob("lru:"))
	require.Equal(t, `a\*\?\[b\]\\`, escapeGlob(`a*?[b]\`))
}
