package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	storagelru "github.com/wolfeidau/storage-lru"
	"github.com/wolfeidau/storage-lru/backend"
	"github.com/wolfeidau/storage-lru/expiry"
	"github.com/wolfeidau/storage-lru/lru"
	"github.com/wolfeidau/storage-lru/telemetry"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := newLogger(&buf, "json", "debug")
	require.NoError(t, err)
	logger.Debug("hello", "k", "v")
	require.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	logger, err = newLogger(&buf, "text", "warn")
	require.NoError(t, err)
	logger.Info("hidden")
	require.Empty(t, buf.String())
	logger.Warn("shown")
	require.Contains(t, buf.String(), "shown")

	_, err = newLogger(&buf, "xml", "info")
	require.Error(t, err)
	_, err = newLogger(&buf, "text", "loud")
	require.Error(t, err)
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()
	logger, err := newLogger(&bytes.Buffer{}, "text", "error")
	require.NoError(t, err)

	tests := []struct {
		name string
		g    Globals
	}{
		{name: "bolt", g: Globals{Store: "bolt", Path: filepath.Join(t.TempDir(), "lru.db")}},
		{name: "fs", g: Globals{Store: "fs", Path: t.TempDir()}},
		{name: "bolt compressed", g: Globals{Store: "bolt", Path: filepath.Join(t.TempDir(), "lru.db"), Compress: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, closeBackend, err := openBackend(tt.g, logger)
			require.NoError(t, err)
			defer func() { require.NoError(t, closeBackend()) }()

			require.NoError(t, b.Set(ctx, "k", []byte("v")))
			got, err := b.Get(ctx, "k")
			require.NoError(t, err)
			require.Equal(t, "v", string(got))
		})
	}

	_, _, err = openBackend(Globals{Store: "tape"}, logger)
	require.Error(t, err)
}

func TestCommands(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	cfg := lru.DefaultConfig()
	cfg.Logger = logger
	cache := lru.New(backend.NewMemory(), cfg)
	defer cache.Close()

	require.NoError(t, (&SetCmd{Key: "greeting", Value: "hello", CacheControl: "max-age=60"}).Run(ctx, cache))
	require.NoError(t, (&SetCmd{Key: "doc", Value: `{"a":1}`, CacheControl: "max-age=60", JSON: true}).Run(ctx, cache))
	require.Error(t, (&SetCmd{Key: "doc", Value: `{`, CacheControl: "max-age=60", JSON: true}).Run(ctx, cache))

	var out bytes.Buffer
	require.NoError(t, (&GetCmd{Key: "greeting"}).Run(ctx, cache, logger, &out))
	require.Equal(t, "hello\n", out.String())

	out.Reset()
	require.NoError(t, (&GetCmd{Key: "doc", JSON: true}).Run(ctx, cache, logger, &out))
	require.JSONEq(t, `{"a":1}`, out.String())

	require.Error(t, (&GetCmd{Key: "missing"}).Run(ctx, cache, logger, &out))

	out.Reset()
	require.NoError(t, (&KeysCmd{}).Run(ctx, cache, &out))
	require.Equal(t, "greeting\ndoc\n", out.String())

	out.Reset()
	require.NoError(t, (&SweepCmd{}).Run(ctx, cache, logger, &out))
	var res expiry.ExpireResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	require.Zero(t, res.Expired)
	require.Zero(t, res.Errors)

	require.NoError(t, (&RmCmd{Keys: []string{"greeting", "doc"}}).Run(ctx, cache))

	out.Reset()
	require.NoError(t, (&StatsCmd{}).Run(ctx, cache, &out))
	require.JSONEq(t, `{"items":0,"size":0,"backend_keys":0}`, out.String())
}

func TestGetLogsStaleValue(t *testing.T) {
	ctx := context.Background()

	now := time.Now().Unix()
	raw, err := storagelru.Format(storagelru.Meta{
		Access:   now - 120,
		Expires:  now - 60,
		MaxAge:   60,
		Stale:    3600,
		Priority: storagelru.DefaultPriority,
	}, []byte("old news"))
	require.NoError(t, err)

	b := backend.NewMemory()
	require.NoError(t, b.Set(ctx, "headline", raw))

	var logs bytes.Buffer
	logger, err := newLogger(&logs, "json", "warn")
	require.NoError(t, err)

	cfg := lru.DefaultConfig()
	cfg.Logger = slog.New(slog.DiscardHandler)
	cache := lru.New(b, cfg)
	defer cache.Close()

	var out bytes.Buffer
	require.NoError(t, (&GetCmd{Key: "headline"}).Run(ctx, cache, logger, &out))
	require.Equal(t, "old news\n", out.String())
	require.Contains(t, logs.String(), `"msg":"value is stale"`)
	require.Contains(t, logs.String(), `"key":"headline"`)
}

func TestMetricsServer(t *testing.T) {
	ctx := context.Background()

	shutdown, err := telemetry.InitMetrics(ctx, telemetry.MetricsConfig{EnablePrometheus: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	cfg := lru.DefaultConfig()
	cfg.Logger = slog.New(slog.DiscardHandler)
	cache := lru.New(backend.NewMemory(), cfg)
	defer cache.Close()

	require.NoError(t, cache.Set(ctx, "greeting", "hello", lru.SetOptions{CacheControl: "max-age=60"}))
	_, found, err := cache.Get(ctx, "greeting", lru.GetOptions{})
	require.NoError(t, err)
	require.True(t, found)

	srv := httptest.NewServer(newMetricsServer("").Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "storage_lru_lookups")
	require.Contains(t, string(body), `result="hit"`)
}
