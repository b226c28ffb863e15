package middleware

import (
	"context"
	"crypto/subtle"

	"github.com/cloudwego/hertz/pkg/app"
	"go.uber.org/zap"

	"DeadManSwitch/pkg/errors"
	"DeadManSwitch/pkg/logger"
	"DeadManSwitch/pkg/response"
)

// TriggerTokenHeader 触发方携带共享密钥的请求头
const TriggerTokenHeader = "X-Trigger-Token"

// TriggerTokenMiddleware 校验共享密钥，token 为空时放行
func TriggerTokenMiddleware(token string) app.HandlerFunc {
	expected := []byte(token)

	return func(ctx context.Context, c *app.RequestContext) {
		if len(expected) == 0 {
			c.Next(ctx)
			return
		}

		got := c.GetHeader(TriggerTokenHeader)
		if subtle.ConstantTimeCompare(got, expected) != 1 {
			logger.Logger.Warn("Rejected trigger request with invalid token",
				zap.String("client_ip", c.ClientIP()),
				zap.String("path", string(c.Path())),
			)
			response.Error(ctx, c, errors.Unauthorized)
			c.Abort()
			return
		}

		c.Next(ctx)
	}
}
