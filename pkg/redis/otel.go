package redis

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingHook Redis 追踪 Hook，同时记录命令数与耗时
type TracingHook struct {
	tracer   trace.Tracer
	attrs    []attribute.KeyValue
	commands metric.Int64Counter
	duration metric.Float64Histogram
}

// NewTracingHook 创建追踪 Hook，指标创建失败时退化为只追踪
func NewTracingHook(serviceName string, db int) *TracingHook {
	meter := otel.Meter(serviceName + ".redis")
	commands, _ := meter.Int64Counter(
		"redis.commands.total",
		metric.WithDescription("Total number of Redis commands"),
		metric.WithUnit("{command}"),
	)
	duration, _ := meter.Float64Histogram(
		"redis.command.duration",
		metric.WithDescription("Redis command duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5),
	)

	return &TracingHook{
		tracer: otel.Tracer(serviceName + ".redis"),
		attrs: []attribute.KeyValue{
			semconv.DBSystemRedis,
			semconv.DBRedisDBIndex(db),
			attribute.String("service.name", serviceName),
		},
		commands: commands,
		duration: duration,
	}
}

// DialHook 实现 redis.Hook 接口
func (th *TracingHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

// ProcessHook 实现 redis.Hook 接口
func (th *TracingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		ctx, span := th.tracer.Start(ctx, cmd.Name(),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(th.attrs...),
		)
		defer span.End()

		// 只记录键名，不记录值（记录内容里有最后一条消息）
		span.SetAttributes(semconv.DBOperation(cmd.Name()))
		if keys := extractKeys(cmd.Args()); len(keys) > 0 {
			span.SetAttributes(attribute.StringSlice("redis.keys", keys))
		}

		startTime := time.Now()
		err := next(ctx, cmd)

		status := "success"
		switch {
		case err == redis.Nil:
			status = "not_found"
			span.SetStatus(codes.Ok, "Key not found")
		case err != nil:
			status = "error"
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		default:
			span.SetStatus(codes.Ok, "Success")
		}

		th.record(ctx, cmd.Name(), status, time.Since(startTime).Seconds())
		return err
	}
}

// ProcessPipelineHook 实现 redis.Hook 接口
func (th *TracingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		ctx, span := th.tracer.Start(ctx, "redis.pipeline",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(th.attrs...),
		)
		defer span.End()

		span.SetAttributes(attribute.Int("redis.pipeline.count", len(cmds)))

		startTime := time.Now()
		err := next(ctx, cmds)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}

		th.record(ctx, "pipeline", statusOf(err), time.Since(startTime).Seconds())
		return err
	}
}

func (th *TracingHook) record(ctx context.Context, command, status string, seconds float64) {
	labels := metric.WithAttributes(
		attribute.String("redis.command", command),
		attribute.String("redis.status", status),
	)
	if th.commands != nil {
		th.commands.Add(ctx, 1, labels)
	}
	if th.duration != nil {
		th.duration.Record(ctx, seconds, labels)
	}
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

const maxSpanKeys = 5

// 参数全部是键的命令
var multiKeyCommands = map[string]bool{
	"del":    true,
	"unlink": true,
	"exists": true,
	"mget":   true,
	"touch":  true,
}

// 不携带键，或第一个参数不是键（AUTH 的第一个参数是密码）
var keylessCommands = map[string]bool{
	"auth":     true,
	"hello":    true,
	"ping":     true,
	"echo":     true,
	"info":     true,
	"client":   true,
	"select":   true,
	"script":   true,
	"config":   true,
	"command":  true,
	"dbsize":   true,
	"time":     true,
	"flushdb":  true,
	"flushall": true,
	"scan":     true,
	"keys":     true,
	"quit":     true,
}

// extractKeys 按命令的键位置提取键名，最多 5 个；值参数不会出现在结果中
func extractKeys(args []interface{}) []string {
	if len(args) < 2 {
		return nil
	}
	name, _ := args[0].(string)
	name = strings.ToLower(name)

	var candidates []interface{}
	switch {
	case keylessCommands[name]:
		return nil
	case multiKeyCommands[name]:
		candidates = args[1:]
	case name == "mset" || name == "msetnx":
		for i := 1; i < len(args); i += 2 {
			candidates = append(candidates, args[i])
		}
	case name == "eval" || name == "evalsha" || name == "eval_ro" || name == "evalsha_ro":
		if len(args) < 3 {
			return nil
		}
		n, ok := numKeys(args[2])
		if !ok || n <= 0 {
			return nil
		}
		end := 3 + n
		if end > len(args) {
			end = len(args)
		}
		candidates = args[3:end]
	default:
		candidates = args[1:2]
	}

	keys := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if len(keys) >= maxSpanKeys {
			break
		}
		if key, ok := c.(string); ok {
			keys = append(keys, sanitizeKey(key))
		}
	}
	return keys
}

func numKeys(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}

// sanitizeKey 隐藏锁与令牌相关键名
func sanitizeKey(key string) string {
	if strings.Contains(key, "token") || strings.Contains(key, "secret") {
		parts := strings.Split(key, ":")
		if len(parts) > 1 {
			return parts[0] + ":***"
		}
		return "***"
	}

	if len(key) > 100 {
		return key[:100] + "..."
	}

	return key
}
