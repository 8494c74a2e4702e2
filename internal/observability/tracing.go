// Package observability provides logging, OpenTelemetry tracing, audit
// events and metrics for gendocs.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

const (
	// TracerName is the name used for the gendocs tracer.
	TracerName = "github.com/efebarandurmaz/gendocs"
)

// TracingConfig configures the OpenTelemetry tracing.
type TracingConfig struct {
	// ServiceName is the name of the service (default: "gendocs")
	ServiceName string

	ServiceVersion string

	// Environment is the deployment environment (dev, ci, release)
	Environment string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317")
	// If empty, tracing is disabled.
	OTLPEndpoint string

	// SampleRate is the trace sampling rate (0.0 to 1.0, default: 1.0)
	SampleRate float64
}

// DefaultTracingConfig returns a default tracing configuration.
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		ServiceName:    "gendocs",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		SampleRate:     1.0,
	}
}

// TracerProvider wraps the OpenTelemetry tracer provider.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing initializes OpenTelemetry tracing.
// Returns a no-op tracer if OTLPEndpoint is empty.
func InitTracing(ctx context.Context, cfg *TracingConfig) (*TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultTracingConfig()
	}

	if cfg.OTLPEndpoint == "" {
		return &TracerProvider{
			tracer: otel.Tracer(TracerName),
		}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithDialOption(grpc.WithUserAgent(cfg.ServiceName+"/"+cfg.ServiceVersion)),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.SampleRate)),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{
		provider: provider,
		tracer:   provider.Tracer(TracerName),
	}, nil
}

func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Shutdown flushes pending spans and shuts down the tracer provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the underlying tracer.
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

const (
	SpanKindRun    = "run"
	SpanKindScan   = "scan"
	SpanKindInvoke = "invoke"
)

// StartRunSpan starts the root span of a dispatch run.
func StartRunSpan(ctx context.Context, sourceDir string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "gendocs.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("gendocs.span.kind", SpanKindRun),
			attribute.String("scan.dir", sourceDir),
		),
	)
}

// StartScanSpan starts a span for listing the source directory.
func StartScanSpan(ctx context.Context, dir, suffix string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "gendocs.scan",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("gendocs.span.kind", SpanKindScan),
			attribute.String("scan.dir", dir),
			attribute.String("scan.suffix", suffix),
		),
	)
}

// RecordScanResult records the listing outcome on a span.
func RecordScanResult(span trace.Span, entries, matched int) {
	span.SetAttributes(
		attribute.Int("scan.entry_count", entries),
		attribute.Int("scan.match_count", matched),
	)
}

// StartInvokeSpan starts a span for one external command invocation. file is
// the match that triggered it; it is not passed to the command.
func StartInvokeSpan(ctx context.Context, command, file string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "gendocs.invoke",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gendocs.span.kind", SpanKindInvoke),
			attribute.String("invoke.command", command),
			attribute.String("invoke.file", file),
		),
	)
}

// RecordInvokeResult records the child's exit status on a span. A non-zero
// exit is recorded but does not mark the span as failed.
func RecordInvokeResult(span trace.Span, exitCode int, duration time.Duration) {
	span.SetAttributes(
		attribute.Int("invoke.exit_code", exitCode),
		attribute.Int64("invoke.duration_ms", duration.Milliseconds()),
	)
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
