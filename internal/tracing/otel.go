// internal/tracing/otel.go
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

const (
	ExporterStdout = "stdout"
	ExporterNone   = "none"
)

// InitTracer installs the global tracer provider and propagator for
// serviceName. With ExporterNone spans are still created, so trace context
// propagates over gRPC, but nothing is exported. The returned function
// flushes and shuts the provider down.
func InitTracer(serviceName, nodeID, exporterName string) (func(context.Context) error, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceInstanceID(nodeID),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build trace resource: %w", err)
	}

	opts := []trace.TracerProviderOption{trace.WithResource(res)}
	switch exporterName {
	case ExporterStdout:
		exporter, err := newExporter(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		opts = append(opts, trace.WithBatcher(exporter))
	case ExporterNone, "":
	default:
		return nil, fmt.Errorf("unknown tracing exporter %q", exporterName)
	}

	tp := trace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// newExporter creates a stdout trace exporter writing to w.
func newExporter(w io.Writer) (trace.SpanExporter, error) {
	return stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithPrettyPrint(),
	)
}
