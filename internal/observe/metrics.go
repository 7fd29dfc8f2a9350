// Package observe provides the OpenTelemetry instruments shared by the cache
// and the catalog client. Tests should build their own [Metrics] with
// [NewMetrics] and an SDK meter provider backed by a manual reader.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/kapu/pokedex-go"

// Lookup results recorded by the keyed cache.
const (
	LookupHit     = "hit"
	LookupStale   = "stale"
	LookupMiss    = "miss"
	LookupPending = "pending"
	LookupFailed  = "failed"
)

// Metrics holds all instruments. Safe for concurrent use.
type Metrics struct {
	CacheLookups   metric.Int64Counter
	CacheFetches   metric.Int64Counter
	CacheEvictions metric.Int64Counter
	FetchDuration  metric.Float64Histogram
	CatalogErrors  metric.Int64Counter
}

var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CacheLookups, err = m.Int64Counter("pokedex.cache.lookups",
		metric.WithDescription("Cache Get calls by cache and result."),
	); err != nil {
		return nil, err
	}
	if met.CacheFetches, err = m.Int64Counter("pokedex.cache.fetches",
		metric.WithDescription("Fetches issued by the cache by cache and outcome."),
	); err != nil {
		return nil, err
	}
	if met.CacheEvictions, err = m.Int64Counter("pokedex.cache.evictions",
		metric.WithDescription("Entries evicted by the capacity bound."),
	); err != nil {
		return nil, err
	}
	if met.FetchDuration, err = m.Float64Histogram("pokedex.cache.fetch.duration",
		metric.WithDescription("Latency of cache fetches including the record tier."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CatalogErrors, err = m.Int64Counter("pokedex.catalog.errors",
		metric.WithDescription("Catalog request failures by record kind and error kind."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

func (m *Metrics) RecordLookup(ctx context.Context, cache, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache", cache),
		attribute.String("result", result),
	))
}

func (m *Metrics) RecordFetch(ctx context.Context, cache, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("cache", cache),
		attribute.String("outcome", outcome),
	)
	m.CacheFetches.Add(ctx, 1, attrs)
	m.FetchDuration.Record(ctx, elapsed.Seconds(), attrs)
}

func (m *Metrics) RecordEviction(ctx context.Context, cache string) {
	if m == nil {
		return
	}
	m.CacheEvictions.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", cache)))
}

func (m *Metrics) RecordCatalogError(ctx context.Context, kind, errKind string) {
	if m == nil {
		return
	}
	m.CatalogErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("error_kind", errKind),
	))
}
