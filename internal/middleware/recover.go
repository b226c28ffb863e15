package middleware

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"DeadManSwitch/pkg/errors"
	"DeadManSwitch/pkg/logger"
	"DeadManSwitch/pkg/response"
)

// 生产环境只返回统一提示，开发环境附带 panic 内容与调用栈
var internalError = errors.Definition{Code: "INTERNAL_SERVER_ERROR", Message: "Internal server error"}

// RecoverMiddleware 捕获 panic，记录日志与 span 后返回 500
func RecoverMiddleware(isProduction bool) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		defer func() {
			if r := recover(); r != nil {
				handlePanic(ctx, c, r, isProduction)
			}
		}()

		c.Next(ctx)
	}
}

func handlePanic(ctx context.Context, c *app.RequestContext, r interface{}, isProduction bool) {
	stack := simpleStack(4)

	logger.Logger.Error("[PANIC RECOVERED]",
		zap.String("panic", fmt.Sprintf("%v", r)),
		zap.String("path", string(c.Path())),
		zap.String("method", string(c.Method())),
		zap.String("client_ip", c.ClientIP()),
		zap.String("request_id", requestID(c)),
		zap.String("stack", stack),
	)

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(fmt.Errorf("panic: %v", r))
		span.SetStatus(codes.Error, "panic recovered")
	}

	if isProduction {
		response.Error(ctx, c, internalError)
	} else {
		response.ErrorWithDetails(ctx, c, internalError, map[string]interface{}{
			"panic": fmt.Sprintf("%v", r),
			"stack": stack,
		})
	}
	c.Abort()
}

// simpleStack 当前 goroutine 的调用栈，跳过 runtime 帧
func simpleStack(skip int) string {
	var b strings.Builder
	for i := skip; ; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil || strings.HasPrefix(fn.Name(), "runtime.") {
			continue
		}
		fmt.Fprintf(&b, "  %s:%d\n    %s\n", file, line, fn.Name())
	}
	return b.String()
}

func requestID(c *app.RequestContext) string {
	if id := c.GetHeader("X-Request-ID"); len(id) > 0 {
		return string(id)
	}
	return string(c.GetHeader("X-Trace-ID"))
}
