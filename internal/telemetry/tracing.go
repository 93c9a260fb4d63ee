// Package telemetry wires OpenTelemetry tracing around the pipeline's
// external I/O: API fetches, cold-store uploads, archive partition moves.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/vitals-systems/siphon/pkg/types"
)

// TracerName identifies spans created by this service.
const TracerName = "siphon"

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Init configures the global tracer provider with OTLP gRPC export. Returns
// a shutdown function to flush spans on termination. When tracing is
// disabled the shutdown function is a no-op and spans cost nothing.
func Init(ctx context.Context, cfg types.TracingConfig) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{}
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(TracerName),
			semconv.ServiceVersion(Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating trace resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0 || cfg.SampleRate == 0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate < 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

// Tracer returns the global tracer for this service.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartSpan creates a new span with the given name and attributes.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// Pipeline-specific attribute keys.
var (
	AttrSite      = attribute.Key("siphon.site")
	AttrPoint     = attribute.Key("siphon.point")
	AttrDay       = attribute.Key("siphon.day")
	AttrObjectKey = attribute.Key("siphon.object.key")
	AttrRows      = attribute.Key("siphon.rows")
	AttrBytes     = attribute.Key("siphon.bytes")
	AttrRunID     = attribute.Key("siphon.run_id")
)
