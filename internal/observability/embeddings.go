package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EmbeddingMetrics records embedding calls and backfill progress.
// Methods accept ctx for future exemplar support.
type EmbeddingMetrics interface {
	RecordEmbedding(ctx context.Context, stage, status string, duration time.Duration)
	RecordBackfillMovie(ctx context.Context, status string)
	RecordBackfillJobEnqueued(ctx context.Context)
}

// embeddingMetrics implements EmbeddingMetrics.
type embeddingMetrics struct {
	outcomes     metric.Int64Counter
	duration     metric.Float64Histogram
	backfill     metric.Int64Counter
	jobsEnqueued metric.Int64Counter
}

// NewEmbeddingMetrics creates EmbeddingMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewEmbeddingMetrics(meter metric.Meter) (EmbeddingMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	outcomes, err := meter.Int64Counter(
		MetricNameEmbeddingOutcomes,
		metric.WithDescription("Embedding calls by stage (query, backfill, sample) and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding outcomes counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		MetricNameEmbeddingDuration,
		metric.WithDescription("Embedding call duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding duration histogram: %w", err)
	}

	backfill, err := meter.Int64Counter(
		MetricNameBackfillMovies,
		metric.WithDescription("Movies processed by the embedding backfill, by status (embedded, failed)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create backfill movies counter: %w", err)
	}

	jobsEnqueued, err := meter.Int64Counter(
		MetricNameBackfillJobsEnqueued,
		metric.WithDescription("Total backfill jobs enqueued"),
	)
	if err != nil {
		return nil, fmt.Errorf("create backfill jobs enqueued counter: %w", err)
	}

	return &embeddingMetrics{
		outcomes:     outcomes,
		duration:     duration,
		backfill:     backfill,
		jobsEnqueued: jobsEnqueued,
	}, nil
}

func (e *embeddingMetrics) RecordEmbedding(ctx context.Context, stage, status string, duration time.Duration) {
	stage = NormalizeReason(stage, AllowedEmbeddingStages)
	status = NormalizeReason(status, AllowedEmbeddingStatuses)

	e.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrStage, stage),
		attribute.String(AttrStatus, status),
	))
	e.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String(AttrStatus, status)))
}

func (e *embeddingMetrics) RecordBackfillMovie(ctx context.Context, status string) {
	status = NormalizeReason(status, AllowedBackfillStatuses)
	e.backfill.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrStatus, status)))
}

func (e *embeddingMetrics) RecordBackfillJobEnqueued(ctx context.Context) {
	e.jobsEnqueued.Add(ctx, 1)
}
