package mq

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestMessageHeaderCarrier(t *testing.T) {
	c := &MessageHeaderCarrier{}
	c.Set("traceparent", "00-abc")

	assert.Equal(t, "00-abc", c.Get("traceparent"))
	assert.Equal(t, "", c.Get("missing"))
	assert.ElementsMatch(t, []string{"traceparent"}, c.Keys())

	c.Headers["number"] = int32(7)
	assert.Equal(t, "", c.Get("number"))
}

func TestInjectExtractRoundTrip(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	original := amqp.Table{"x-source": "dms"}
	headers := InjectHeaders(ctx, original)

	assert.Equal(t, "dms", headers["x-source"])
	assert.Contains(t, headers, "traceparent")
	assert.NotContains(t, original, "traceparent")

	got := trace.SpanContextFromContext(ExtractContext(context.Background(), headers))
	assert.Equal(t, span.SpanContext().TraceID(), got.TraceID())
}
