package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	prometheusexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const (
	meterScope         = "github.com/filmgrid/hub/internal/observability"
	defaultServiceName = "filmgrid-hub"
	cardinalityLimit   = 2000

	otlpExportInterval = 60 * time.Second
)

// latencyHistogramBoundaries are Prometheus-style buckets (seconds) for HTTP and embedding durations.
var latencyHistogramBoundaries = []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 5}

// recommendationHistogramBoundaries cover the LLM rerank call, which dominates recommendation latency.
var recommendationHistogramBoundaries = []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 40, 60}

// candidateHistogramBoundaries are buckets for the number of retrieved candidates.
var candidateHistogramBoundaries = []float64{0, 1, 5, 10, 20, 30, 50, 100, 150}

// MeterProviderShutdown is the subset of the SDK MeterProvider needed for shutdown.
type MeterProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// MeterProviderConfig holds configuration for creating the MeterProvider and metrics.
type MeterProviderConfig struct {
	// ServiceName is used in the resource (default: filmgrid-hub).
	ServiceName string
	// OTLPPush adds a periodic OTLP/HTTP reader next to the Prometheus one.
	// Endpoint and headers come from the standard OTEL_EXPORTER_OTLP_* variables.
	OTLPPush bool
}

// NewMeterProvider creates a MeterProvider with Prometheus exporter and returns the provider,
// an HTTP handler for /metrics, and the Metrics collectors that use the provider's Meter.
// The provider is also installed globally. Caller must call provider.Shutdown on exit. When metrics are disabled, pass nil for metrics at call sites.
func NewMeterProvider(
	ctx context.Context, cfg MeterProviderConfig,
) (provider MeterProviderShutdown, metricsHandler http.Handler, metrics *Metrics, err error) {
	serviceNameVal := cfg.ServiceName
	if serviceNameVal == "" {
		serviceNameVal = defaultServiceName
	}

	// Use a single resource to avoid Schema URL conflicts when merging with resource.Default().
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceNameVal),
	)

	reg := prometheus.NewRegistry()

	exporter, err := prometheusexporter.New(
		prometheusexporter.WithRegisterer(reg),
		prometheusexporter.WithoutUnits(),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
		sdkmetric.WithCardinalityLimit(cardinalityLimit),
		sdkmetric.WithView(
			histogramView(MetricNameHTTPRequestDuration, latencyHistogramBoundaries),
			histogramView(MetricNameEmbeddingDuration, latencyHistogramBoundaries),
			histogramView(MetricNameRecommendationDuration, recommendationHistogramBoundaries),
			histogramView(MetricNameRecommendationCandidates, candidateHistogramBoundaries),
		),
	}

	if cfg.OTLPPush {
		otlpExporter, err := otlpmetrichttp.New(ctx)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create OTLP metric exporter: %w", err)
		}

		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(otlpExporter, sdkmetric.WithInterval(otlpExportInterval)),
		))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	provider = mp

	// otelhttp and other instrumentation pick up the global provider.
	otel.SetMeterProvider(mp)

	metrics, err = NewMetrics(mp.Meter(meterScope))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create metrics instruments: %w", err)
	}

	metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return provider, metricsHandler, metrics, nil
}

func histogramView(name string, boundaries []float64) sdkmetric.View {
	return sdkmetric.NewView(
		sdkmetric.Instrument{Name: name},
		sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: boundaries}},
	)
}
