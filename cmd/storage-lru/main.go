// Command storage-lru inspects and maintains a cache stored in a bolt
// database, a directory or a Redis namespace.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"

	"github.com/wolfeidau/storage-lru/backend"
	"github.com/wolfeidau/storage-lru/expiry"
	"github.com/wolfeidau/storage-lru/lru"
	"github.com/wolfeidau/storage-lru/telemetry"
)

var version = "dev"

type Globals struct {
	Store            string `help:"Storage backend." enum:"bolt,fs,redis" default:"bolt" env:"STORAGE_LRU_STORE"`
	Path             string `help:"Bolt database file or cache directory." default:"./storage-lru.db" env:"STORAGE_LRU_PATH"`
	RedisAddr        string `help:"Redis address for the redis store." default:"localhost:6379" env:"STORAGE_LRU_REDIS_ADDR"`
	KeyPrefix        string `help:"Prefix applied to every key." env:"STORAGE_LRU_KEY_PREFIX"`
	MaxBytes         int64  `help:"Capacity of the bolt or fs store in bytes, 0 for unlimited." env:"STORAGE_LRU_MAX_BYTES"`
	Compress         bool   `help:"Compress large values with zstd." env:"STORAGE_LRU_COMPRESS"`
	LogLevel         string `help:"Log level." enum:"debug,info,warn,error" default:"warn" env:"STORAGE_LRU_LOG_LEVEL"`
	LogFormat        string `help:"Log format." enum:"text,json" default:"text" env:"STORAGE_LRU_LOG_FORMAT"`
	OTLPEndpoint     string `name:"otlp-endpoint" help:"OTLP gRPC endpoint for metrics export." env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	MetricsAddr      string `name:"metrics-addr" help:"Serve Prometheus metrics on this address at /metrics, e.g. :9090." env:"STORAGE_LRU_METRICS_ADDR"`
	FetchConcurrency int    `help:"Concurrent reads while indexing." default:"16"`
}

type CLI struct {
	Globals

	Get     GetCmd           `cmd:"" help:"Print the value stored under a key."`
	Set     SetCmd           `cmd:"" help:"Store a value under a key."`
	Rm      RmCmd            `cmd:"" help:"Remove a key."`
	Keys    KeysCmd          `cmd:"" help:"List keys."`
	Purge   PurgeCmd         `cmd:"" help:"Evict items until enough space is free."`
	Stats   StatsCmd         `cmd:"" help:"Print item count and stored size."`
	Sweep   SweepCmd         `cmd:"" help:"Drop expired items and purge down to a size limit."`
	Version kong.VersionFlag `help:"Print version and exit."`
}

type GetCmd struct {
	Key  string `arg:"" help:"Key to read."`
	JSON bool   `name:"json" help:"Decode the value as JSON and pretty print it."`
}

func (c *GetCmd) Run(ctx context.Context, cache *lru.Cache, logger *slog.Logger, out io.Writer) error {
	item, found, err := cache.Get(ctx, c.Key, lru.GetOptions{JSON: c.JSON})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s: not found", c.Key)
	}

	if c.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(item.JSON); err != nil {
			return err
		}
	} else {
		if _, err := fmt.Fprintln(out, string(item.Value)); err != nil {
			return err
		}
	}
	if item.Stale {
		logger.Warn("value is stale", "key", c.Key)
	}
	return nil
}

type SetCmd struct {
	Key          string `arg:"" help:"Key to write."`
	Value        string `arg:"" help:"Value to store."`
	CacheControl string `help:"Cache-Control directives, e.g. max-age=300,stale-while-revalidate=600." default:"max-age=3600"`
	Priority     int    `help:"Eviction priority; larger values are purged first." default:"3"`
	JSON         bool   `name:"json" help:"Validate the value as JSON and store it re-encoded."`
}

func (c *SetCmd) Run(ctx context.Context, cache *lru.Cache) error {
	var value any = c.Value
	if c.JSON {
		var decoded any
		if err := json.Unmarshal([]byte(c.Value), &decoded); err != nil {
			return fmt.Errorf("parsing value as json: %w", err)
		}
		value = decoded
	}
	return cache.Set(ctx, c.Key, value, lru.SetOptions{
		CacheControl: c.CacheControl,
		Priority:     c.Priority,
		JSON:         c.JSON,
	})
}

type RmCmd struct {
	Keys []string `arg:"" help:"Keys to remove."`
}

func (c *RmCmd) Run(ctx context.Context, cache *lru.Cache) error {
	for _, k := range c.Keys {
		if err := cache.Remove(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

type KeysCmd struct {
	Limit int `help:"Maximum number of keys to list, 0 for all." default:"0"`
}

func (c *KeysCmd) Run(ctx context.Context, cache *lru.Cache, out io.Writer) error {
	keys, err := cache.Keys(ctx, c.Limit)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if _, err := fmt.Fprintln(out, k); err != nil {
			return err
		}
	}
	return nil
}

type PurgeCmd struct {
	Bytes int `arg:"" help:"Bytes that need to be freed."`
}

func (c *PurgeCmd) Run(ctx context.Context, cache *lru.Cache) error {
	return cache.Purge(ctx, c.Bytes)
}

type StatsCmd struct{}

func (c *StatsCmd) Run(ctx context.Context, cache *lru.Cache, out io.Writer) error {
	u, err := cache.Usage(ctx)
	if err != nil {
		return err
	}
	n, err := cache.NumItems(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"items":        u.Count,
		"size":         u.Size,
		"backend_keys": n,
	})
}

type SweepCmd struct {
	MaxSize  int64         `help:"Target stored size in bytes, 0 to only drop expired items." default:"0"`
	Interval time.Duration `help:"Keep running, sweeping at this interval, until interrupted."`
}

func (c *SweepCmd) Run(ctx context.Context, cache *lru.Cache, logger *slog.Logger, out io.Writer) error {
	mgr := expiry.NewManager(cache, expiry.Config{
		MaxSize:       c.MaxSize,
		CheckInterval: c.Interval,
		Logger:        logger,
	})

	if c.Interval > 0 {
		if err := mgr.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		mgr.Stop()
		return nil
	}

	res := mgr.RunOnce(ctx)
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if res.Errors > 0 {
		return fmt.Errorf("sweep finished with %d errors", res.Errors)
	}
	return nil
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("storage-lru"),
		kong.Description("Inspect and maintain an LRU cache kept in a key-value store."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	if err := run(kctx, &cli); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(kctx *kong.Context, cli *CLI) error {
	logger, err := newLogger(os.Stderr, cli.LogFormat, cli.LogLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cli.OTLPEndpoint != "" || cli.MetricsAddr != "" {
		shutdown, err := telemetry.InitMetrics(ctx, telemetry.MetricsConfig{
			ServiceName:      "storage-lru",
			ServiceVersion:   version,
			OTLPEndpoint:     cli.OTLPEndpoint,
			EnablePrometheus: cli.MetricsAddr != "",
		})
		if err != nil {
			return fmt.Errorf("initialising metrics: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("flushing metrics", "error", err)
			}
		}()
	}

	if cli.MetricsAddr != "" {
		srv := newMetricsServer(cli.MetricsAddr)
		go func() {
			logger.Info("serving metrics", "address", cli.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	b, closeBackend, err := openBackend(cli.Globals, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeBackend(); err != nil {
			logger.Warn("closing backend", "error", err)
		}
	}()

	cfg := lru.DefaultConfig()
	cfg.KeyPrefix = cli.KeyPrefix
	cfg.FetchConcurrency = cli.FetchConcurrency
	cfg.Logger = logger
	cfg.PurgedFunc = func(keys []string) {
		logger.Info("purged", "count", len(keys), "keys", keys)
	}

	cache := lru.New(b, cfg)
	defer cache.Close()

	kctx.BindTo(ctx, (*context.Context)(nil))
	kctx.Bind(cache, logger)
	kctx.BindTo(os.Stdout, (*io.Writer)(nil))
	return kctx.Run()
}

// newMetricsServer serves the Prometheus handler at GET /metrics.
func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", telemetry.PrometheusHandler())

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// newLogger builds a tint (text) or JSON slog logger writing to w.
func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	switch format {
	case "text":
		return slog.New(tint.NewHandler(w, &tint.Options{Level: lvl, TimeFormat: time.Kitchen})), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
}

// openBackend opens the configured store, wrapped for compression and
// metrics. The returned func releases it.
func openBackend(g Globals, logger *slog.Logger) (backend.Backend, func() error, error) {
	var (
		b       backend.Backend
		closers []func() error
	)

	switch g.Store {
	case "bolt":
		db, err := backend.OpenBolt(g.Path,
			backend.WithBoltMaxBytes(g.MaxBytes),
			backend.WithLogger(logger),
		)
		if err != nil {
			return nil, nil, err
		}
		b = db
		closers = append(closers, db.Close)
	case "fs":
		fs, err := backend.NewFilesystem(g.Path, backend.WithFilesystemMaxBytes(g.MaxBytes))
		if err != nil {
			return nil, nil, err
		}
		b = fs
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: g.RedisAddr})
		b = backend.NewRedis(client, "storage-lru:")
		closers = append(closers, client.Close)
	default:
		return nil, nil, fmt.Errorf("unknown store: %s", g.Store)
	}

	if g.Compress {
		c, err := backend.NewCompressed(b, 0)
		if err != nil {
			return nil, nil, err
		}
		b = c
		closers = append(closers, func() error {
			c.Close()
			return nil
		})
	}

	closeAll := func() error {
		var firstErr error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	return backend.NewInstrumentedBackend(b, g.Store), closeAll, nil
}
