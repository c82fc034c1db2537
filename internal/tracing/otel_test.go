package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracer(t *testing.T) {
	for _, exporter := range []string{ExporterNone, ExporterStdout} {
		shutdown, err := InitTracer("nlmd-test", "node-1", exporter)
		require.NoError(t, err, exporter)

		_, span := otel.Tracer("test").Start(context.Background(), "span")
		assert.True(t, span.SpanContext().IsValid(), exporter)
		span.End()

		require.NoError(t, shutdown(context.Background()))
	}
}

func TestInitTracer_UnknownExporter(t *testing.T) {
	_, err := InitTracer("nlmd-test", "node-1", "jaeger")
	assert.Error(t, err)
}
