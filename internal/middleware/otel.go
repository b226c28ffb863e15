package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// toValidUTF8 清洗用户可控字符串，防止非法 UTF-8 触发指标/trace 序列化失败
func toValidUTF8(val string) string {
	return strings.ToValidUTF8(val, "")
}

// headerCarrier 从 hertz 请求头读取 traceparent
type headerCarrier struct {
	c *app.RequestContext
}

func (h headerCarrier) Get(key string) string { return string(h.c.GetHeader(key)) }
func (h headerCarrier) Set(key, value string) { h.c.Request.Header.Set(key, value) }
func (h headerCarrier) Keys() []string {
	var keys []string
	h.c.Request.Header.VisitAll(func(k, _ []byte) {
		keys = append(keys, string(k))
	})
	return keys
}

var _ propagation.TextMapCarrier = headerCarrier{}

// OpenTelemetryMiddleware 为每个请求创建 server span 并记录请求数与耗时
func OpenTelemetryMiddleware(serviceName string) app.HandlerFunc {
	tracer := otel.Tracer(serviceName + ".http")
	meter := otel.Meter(serviceName + ".http")

	requests, _ := meter.Int64Counter(
		"http.server.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	duration, _ := meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)

	return func(ctx context.Context, c *app.RequestContext) {
		startTime := time.Now()

		method := toValidUTF8(string(c.Method()))
		path := toValidUTF8(string(c.Path()))

		ctx = otel.GetTextMapPropagator().Extract(ctx, headerCarrier{c: c})
		spanCtx, span := tracer.Start(ctx, method+" "+path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPMethod(method),
				semconv.HTTPRoute(path),
				attribute.String("http.user_agent", toValidUTF8(string(c.UserAgent()))),
			),
		)
		defer span.End()

		if id := c.GetHeader("X-Request-Id"); len(id) > 0 {
			span.SetAttributes(attribute.String("http.request_id", toValidUTF8(string(id))))
		}

		c.Next(spanCtx)

		statusCode := c.Response.StatusCode()
		span.SetAttributes(semconv.HTTPStatusCode(statusCode))
		if statusCode >= 500 {
			span.SetStatus(codes.Error, "HTTP server error")
			if lastErr := c.Errors.Last(); lastErr != nil {
				span.RecordError(lastErr)
			}
		} else {
			span.SetStatus(codes.Ok, "")
		}

		labels := metric.WithAttributes(
			semconv.HTTPMethod(method),
			semconv.HTTPRoute(path),
			semconv.HTTPStatusCode(statusCode),
		)
		if requests != nil {
			requests.Add(ctx, 1, labels)
		}
		if duration != nil {
			duration.Record(ctx, time.Since(startTime).Seconds(), labels)
		}
	}
}
