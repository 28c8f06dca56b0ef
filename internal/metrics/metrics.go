package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdk "go.opentelemetry.io/otel/sdk/metric"
)

// Config controls the metrics provider.
type Config struct {
	Enabled bool `conf:"enabled" yaml:"enabled" json:"enabled"`

	// Interval between exports.
	Interval time.Duration `conf:"interval" yaml:"interval" json:"interval"`
}

// NewProvider builds a meter provider with a stdout exporter, or nil when
// metrics are disabled.
func NewProvider(cfg Config) (*sdk.MeterProvider, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	if cfg.Interval == 0 {
		cfg.Interval = time.Minute
	}

	exporter, err := stdoutmetric.New()
	if err != nil {
		return nil, err
	}

	provider := sdk.NewMeterProvider(
		sdk.WithReader(sdk.NewPeriodicReader(exporter, sdk.WithInterval(cfg.Interval))),
	)
	otel.SetMeterProvider(provider)

	return provider, nil
}

var meter = otel.Meter("github.com/parrotgw/parrot")

var (
	hitCounter, _ = meter.Int64Counter("parrot.cache.hits",
		metric.WithDescription("Cache hits served, by match tier"))
	missCounter, _ = meter.Int64Counter("parrot.cache.misses",
		metric.WithDescription("Cache misses forwarded upstream"))
	writeFailureCounter, _ = meter.Int64Counter("parrot.cache.write_failures",
		metric.WithDescription("Write-through failures, by tier"))
	degradationCounter, _ = meter.Int64Counter("parrot.cache.degradations",
		metric.WithDescription("Lookups served in a degraded mode, by mode"))
	lookupLatency, _ = meter.Float64Histogram("parrot.cache.lookup_ms",
		metric.WithDescription("Cache lookup latency in milliseconds"))
)

// RecordHit counts a served hit for the given match tier.
func RecordHit(ctx context.Context, match string) {
	hitCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("match", match)))
}

// RecordMiss counts a forwarded miss.
func RecordMiss(ctx context.Context) {
	missCounter.Add(ctx, 1)
}

// RecordWriteFailure counts a write-through failure for the given tier.
func RecordWriteFailure(ctx context.Context, tier string) {
	writeFailureCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier)))
}

// RecordDegradation counts a lookup served under the given degradation mode.
func RecordDegradation(ctx context.Context, mode string) {
	degradationCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordLookupLatency records one lookup's latency.
func RecordLookupLatency(ctx context.Context, d time.Duration) {
	lookupLatency.Record(ctx, float64(d.Microseconds())/1000.0)
}
