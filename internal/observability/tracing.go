package observability

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// newOTLPTraceExporter creates an OTLP HTTP trace exporter. The SDK reads
// OTEL_EXPORTER_OTLP_ENDPOINT (and scheme/insecure) from the environment.
func newOTLPTraceExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	exp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("create OTLP HTTP trace exporter: %w", err)
	}

	return exp, nil
}

func newStdoutTraceExporter() (sdktrace.SpanExporter, error) {
	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create stdout trace exporter: %w", err)
	}

	return exp, nil
}

// TracerProviderShutdown is the subset of the SDK TracerProvider needed for shutdown.
type TracerProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// TracerProviderConfig selects the span exporter and sampler.
type TracerProviderConfig struct {
	// Exporter is "otlp", "stdout", or empty/"none" to disable tracing.
	Exporter    string
	ServiceName string
	// Sampler and SamplerArg take OTEL_TRACES_SAMPLER / OTEL_TRACES_SAMPLER_ARG values.
	Sampler    string
	SamplerArg string
}

// NewTracerProvider creates a TracerProvider for cfg.Exporter, registers it globally with
// W3C trace-context propagation, and returns it for shutdown.
// A disabled exporter returns (nil, nil).
func NewTracerProvider(ctx context.Context, cfg TracerProviderConfig) (TracerProviderShutdown, error) {
	var exporterFn func() (sdktrace.SpanExporter, error)

	switch strings.ToLower(cfg.Exporter) {
	case "", "none":
		//nolint:nilnil // intentional: tracing disabled
		return nil, nil
	case "otlp":
		exporterFn = func() (sdktrace.SpanExporter, error) { return newOTLPTraceExporter(ctx) }
	case "stdout":
		exporterFn = newStdoutTraceExporter
	default:
		return nil, fmt.Errorf("unknown traces exporter %q (want otlp, stdout or none)", cfg.Exporter)
	}

	// Validate the sampler before creating an exporter that would need shutting down.
	sampler, err := newSampler(cfg.Sampler, cfg.SamplerArg)
	if err != nil {
		return nil, err
	}

	exp, err := exporterFn()
	if err != nil {
		return nil, err
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp, nil
}
