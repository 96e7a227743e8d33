package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

func TestInitTracerProviderRecordsSpans(t *testing.T) {
	ctx := context.Background()
	rec := tracetest.NewSpanRecorder()

	tp, err := InitTracerProvider(ctx, "profile-crawler-test", sdktrace.WithSpanProcessor(rec))
	require.NoError(t, err)
	defer func() { require.NoError(t, tp.Shutdown(ctx)) }()

	_, span := otel.Tracer("test").Start(ctx, "walk")
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "walk", spans[0].Name())
	assert.Contains(t, spans[0].Resource().Attributes(), semconv.ServiceName("profile-crawler-test"))
	assert.ElementsMatch(t, []string{"traceparent", "tracestate", "baggage"}, otel.GetTextMapPropagator().Fields())
}
