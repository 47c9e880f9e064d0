package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CacheMetrics counts cache lookups by cache name and result.
type CacheMetrics interface {
	RecordHit(ctx context.Context, cacheName string)
	RecordMiss(ctx context.Context, cacheName string)
}

type cacheMetrics struct {
	lookups metric.Int64Counter
}

var (
	resultHit  = attribute.String(AttrResult, "hit")
	resultMiss = attribute.String(AttrResult, "miss")
)

// NewCacheMetrics creates CacheMetrics. Returns (nil, nil) when meter is nil.
func NewCacheMetrics(meter metric.Meter) (CacheMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	lookups, err := meter.Int64Counter(MetricNameCacheLookups,
		metric.WithDescription("Ranking cache lookups. Labels: cache, result (hit|miss). "+
			"Hit ratio = rate(result=hit) / rate(all)."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache lookups counter: %w", err)
	}

	return &cacheMetrics{lookups: lookups}, nil
}

func (c *cacheMetrics) RecordHit(ctx context.Context, cacheName string) {
	c.record(ctx, cacheName, resultHit)
}

func (c *cacheMetrics) RecordMiss(ctx context.Context, cacheName string) {
	c.record(ctx, cacheName, resultMiss)
}

func (c *cacheMetrics) record(ctx context.Context, cacheName string, result attribute.KeyValue) {
	c.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrCache, NormalizeCacheName(cacheName)), result))
}
