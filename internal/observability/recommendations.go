package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RecommendationMetrics records recommendation pipeline metrics.
type RecommendationMetrics interface {
	RecordRecommendation(ctx context.Context, outcome string, duration time.Duration)
	RecordCandidates(ctx context.Context, count int)
	RecordRerankOutcome(ctx context.Context, outcome string)
}

type recommendationMetrics struct {
	outcomes   metric.Int64Counter
	duration   metric.Float64Histogram
	candidates metric.Int64Histogram
	rerank     metric.Int64Counter
}

// NewRecommendationMetrics creates RecommendationMetrics. Returns (nil, nil) when meter is nil.
func NewRecommendationMetrics(meter metric.Meter) (RecommendationMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	outcomes, err := meter.Int64Counter(
		MetricNameRecommendations,
		metric.WithDescription("Recommendation requests by outcome (ok, empty, degraded, failed, invalid)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create recommendations counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		MetricNameRecommendationDuration,
		metric.WithDescription("End-to-end recommendation duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create recommendation duration histogram: %w", err)
	}

	candidates, err := meter.Int64Histogram(
		MetricNameRecommendationCandidates,
		metric.WithDescription("Number of candidates retrieved per recommendation request"),
	)
	if err != nil {
		return nil, fmt.Errorf("create recommendation candidates histogram: %w", err)
	}

	rerank, err := meter.Int64Counter(
		MetricNameRerankOutcomes,
		metric.WithDescription("Rerank outcomes: ranked by the model, or fallback after a call or parse failure"),
	)
	if err != nil {
		return nil, fmt.Errorf("create rerank outcomes counter: %w", err)
	}

	return &recommendationMetrics{
		outcomes:   outcomes,
		duration:   duration,
		candidates: candidates,
		rerank:     rerank,
	}, nil
}

func (m *recommendationMetrics) RecordRecommendation(ctx context.Context, outcome string, duration time.Duration) {
	outcome = NormalizeReason(outcome, AllowedRecommendationOutcomes)
	attrs := metric.WithAttributes(attribute.String(AttrOutcome, outcome))

	m.outcomes.Add(ctx, 1, attrs)
	m.duration.Record(ctx, duration.Seconds(), attrs)
}

func (m *recommendationMetrics) RecordCandidates(ctx context.Context, count int) {
	m.candidates.Record(ctx, int64(count))
}

func (m *recommendationMetrics) RecordRerankOutcome(ctx context.Context, outcome string) {
	outcome = NormalizeReason(outcome, AllowedRerankOutcomes)
	m.rerank.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrOutcome, outcome)))
}
