package telemetry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

const (
	meterName = "github.com/wolfeidau/storage-lru"
)

// Lookup results recorded by RecordLookup.
const (
	LookupHit   = "hit"
	LookupMiss  = "miss"
	LookupStale = "stale"
	LookupError = "error"
)

// MetricsConfig configures the metrics system.
type MetricsConfig struct {
	// ServiceName is the name of the service for resource attributes.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317").
	// If empty, OTLP export is disabled.
	OTLPEndpoint string

	// EnablePrometheus enables the handler returned by PrometheusHandler.
	EnablePrometheus bool

	// FlushInterval is how often to export metrics (default: 10s).
	FlushInterval time.Duration
}

// Metrics holds the OpenTelemetry metric instruments.
type Metrics struct {
	lookupsTotal       metric.Int64Counter
	revalidationsTotal metric.Int64Counter

	purgeRunsTotal         metric.Int64Counter
	purgeEvictedTotal      metric.Int64Counter
	purgeEvictedBytesTotal metric.Int64Counter
	purgeDuration          metric.Float64Histogram

	stateTransitionsTotal metric.Int64Counter

	backendRequestDuration metric.Float64Histogram
	backendRequestsTotal   metric.Int64Counter
	backendBytesTotal      metric.Int64Counter

	meterProvider *sdkmetric.MeterProvider
	promHandler   http.Handler
}

var (
	globalMetrics *Metrics
	initOnce      sync.Once
	initErr       error
)

// InitMetrics initializes the OpenTelemetry metrics system.
// Returns a shutdown function that should be called on application exit.
// Uses sync.Once to ensure single initialisation.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (shutdown func(context.Context) error, err error) {
	initOnce.Do(func() {
		initErr = doInitMetrics(ctx, cfg)
	})

	if initErr != nil {
		return nil, initErr
	}

	return shutdownMetrics, nil
}

func doInitMetrics(ctx context.Context, cfg MetricsConfig) error {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "storage-lru"
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return err
	}

	var readers []sdkmetric.Reader
	var promHandler http.Handler

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return err
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(otlpExporter,
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	if cfg.EnablePrometheus {
		promReader, handler, err := newPrometheusReader()
		if err != nil {
			return err
		}
		readers = append(readers, promReader)
		promHandler = handler
	}

	// If no exporters configured, use a no-op periodic reader to still collect metrics
	if len(readers) == 0 {
		readers = append(readers, sdkmetric.NewPeriodicReader(noopExporter{},
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)

	m, err := newMetrics(mp.Meter(meterName))
	if err != nil {
		return err
	}
	m.meterProvider = mp
	m.promHandler = promHandler
	globalMetrics = m

	return nil
}

// newPrometheusReader returns a reader exporting to a private registry and
// the handler serving that registry.
func newPrometheusReader() (sdkmetric.Reader, http.Handler, error) {
	reg := prometheus.NewRegistry()
	exp, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, nil, err
	}
	return exp, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	lookupsTotal, err := meter.Int64Counter(
		"storage_lru_lookups_total",
		metric.WithDescription("Total cache lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	revalidationsTotal, err := meter.Int64Counter(
		"storage_lru_revalidations_total",
		metric.WithDescription("Total revalidations of stale items by outcome"),
		metric.WithUnit("{revalidation}"),
	)
	if err != nil {
		return nil, err
	}

	purgeRunsTotal, err := meter.Int64Counter(
		"storage_lru_purge_runs_total",
		metric.WithDescription("Total purge runs by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	purgeEvictedTotal, err := meter.Int64Counter(
		"storage_lru_purge_evicted_total",
		metric.WithDescription("Total items evicted by purge"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	purgeEvictedBytesTotal, err := meter.Int64Counter(
		"storage_lru_purge_evicted_bytes_total",
		metric.WithDescription("Total serialized bytes freed by purge"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	purgeDuration, err := meter.Float64Histogram(
		"storage_lru_purge_duration_seconds",
		metric.WithDescription("Duration of purge runs"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	stateTransitionsTotal, err := meter.Int64Counter(
		"storage_lru_state_transitions_total",
		metric.WithDescription("Total engine transitions between enabled and disabled"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	backendRequestDuration, err := meter.Float64Histogram(
		"storage_lru_backend_request_duration_seconds",
		metric.WithDescription("Duration of backend storage operations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, err
	}

	backendRequestsTotal, err := meter.Int64Counter(
		"storage_lru_backend_requests_total",
		metric.WithDescription("Total number of backend storage operations"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	backendBytesTotal, err := meter.Int64Counter(
		"storage_lru_backend_bytes_total",
		metric.WithDescription("Total bytes transferred in backend operations"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		lookupsTotal:           lookupsTotal,
		revalidationsTotal:     revalidationsTotal,
		purgeRunsTotal:         purgeRunsTotal,
		purgeEvictedTotal:      purgeEvictedTotal,
		purgeEvictedBytesTotal: purgeEvictedBytesTotal,
		purgeDuration:          purgeDuration,
		stateTransitionsTotal:  stateTransitionsTotal,
		backendRequestDuration: backendRequestDuration,
		backendRequestsTotal:   backendRequestsTotal,
		backendBytesTotal:      backendBytesTotal,
	}, nil
}

// shutdownMetrics shuts down the metrics provider and clears the global state.
func shutdownMetrics(ctx context.Context) error {
	if globalMetrics == nil {
		return nil
	}
	err := globalMetrics.meterProvider.Shutdown(ctx)
	globalMetrics = nil
	return err
}

// RecordLookup records the terminal result of a cache lookup.
func RecordLookup(ctx context.Context, result string) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.lookupsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordRevalidation records a revalidation outcome ("success" or "failure").
func RecordRevalidation(ctx context.Context, outcome string) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.revalidationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordPurge records one purge run: how many items and bytes it evicted and
// whether it freed enough space ("success" or "not_enough_space").
func RecordPurge(ctx context.Context, outcome string, evicted int, freed int64, duration time.Duration) {
	if globalMetrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	globalMetrics.purgeRunsTotal.Add(ctx, 1, attrs)
	globalMetrics.purgeDuration.Record(ctx, duration.Seconds(), attrs)
	if evicted > 0 {
		globalMetrics.purgeEvictedTotal.Add(ctx, int64(evicted))
		globalMetrics.purgeEvictedBytesTotal.Add(ctx, freed)
	}
}

// RecordStateTransition records the engine entering state ("enabled" or "disabled").
func RecordStateTransition(ctx context.Context, state string) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.stateTransitionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

// RecordBackendOp records backend operation metrics.
func RecordBackendOp(ctx context.Context, backend, op, outcome string, duration time.Duration, bytes int64) {
	if globalMetrics == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("backend", backend),
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	}
	globalMetrics.backendRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	globalMetrics.backendRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	if bytes > 0 {
		globalMetrics.backendBytesTotal.Add(ctx, bytes, metric.WithAttributes(attrs...))
	}
}

// PrometheusHandler returns the Prometheus metrics HTTP handler.
// Returns a handler that returns 404 if Prometheus export is not enabled,
// allowing safe registration regardless of initialization order.
func PrometheusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if globalMetrics == nil || globalMetrics.promHandler == nil {
			http.NotFound(w, r)
			return
		}
		globalMetrics.promHandler.ServeHTTP(w, r)
	})
}

// noopExporter is a no-op metrics exporter for when no exporters are configured.
type noopExporter struct{}

func (noopExporter) Temporality(_ sdkmetric.InstrumentKind) metricdata.Temporality {
	return metricdata.CumulativeTemporality
}

func (noopExporter) Aggregation(_ sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return nil
}

func (noopExporter) Export(_ context.Context, _ *metricdata.ResourceMetrics) error {
	return nil
}

func (noopExporter) ForceFlush(_ context.Context) error {
	return nil
}

func (noopExporter) Shutdown(_ context.Context) error {
	return nil
}
