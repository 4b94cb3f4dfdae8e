// Package otelinit wires up OpenTelemetry tracing and metrics the same way
// libs/go/core/otelinit does: OTLP gRPC exporters, a merged resource with
// the service name, env-var-configured endpoint, graceful shutdown funcs.
package otelinit

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
)

// Shutdown flushes and stops the one provider it was returned with
// (InitTracer and InitMeter each return their own). It is bounded only by
// the deadline of the context the caller passes.
type Shutdown func(context.Context) error

// InitTracer configures a global tracer provider with an OTLP gRPC
// exporter. If the exporter can't be constructed (no collector reachable),
// it logs a warning and installs a noop tracer rather than failing
// startup — tracing is an ambient concern, not a dependency of correctness.
func InitTracer(ctx context.Context, service string) (*trace.TracerProvider, Shutdown) {
	endpoint := endpointFromEnv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT")
	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithInsecure()),
	)
	if err != nil {
		slog.Warn("otel trace exporter init failed, using noop tracer", "error", err)
		np := noop.NewTracerProvider()
		otel.SetTracerProvider(np)
		return nil, func(context.Context) error { return nil }
	}
	res := mergedResource(service)
	tp := trace.NewTracerProvider(trace.WithBatcher(exp), trace.WithResource(res))
	otel.SetTracerProvider(tp)
	slog.Info("otel tracer initialized", "endpoint", endpoint)
	return tp, tp.Shutdown
}

// InitMeter mirrors InitTracer for metrics.
func InitMeter(ctx context.Context, service string) (metric.MeterProvider, Shutdown) {
	endpoint := endpointFromEnv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT")
	ctxInit, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exp, err := otlpmetricgrpc.New(ctxInit,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithDialOption(grpc.WithInsecure()),
	)
	if err != nil {
		slog.Warn("otel metric exporter init failed, using noop meter", "error", err)
		return nil, func(context.Context) error { return nil }
	}
	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(10*time.Second))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(mergedResource(service)))
	otel.SetMeterProvider(mp)
	slog.Info("otel meter initialized", "endpoint", endpoint)
	return mp, mp.Shutdown
}

func mergedResource(service string) *resource.Resource {
	res, _ := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(service),
	))
	return res
}

func endpointFromEnv(specific string) string {
	if v := os.Getenv(specific); v != "" {
		return v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		return v
	}
	return "localhost:4317"
}
