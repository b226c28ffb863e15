package router

import (
	"github.com/cloudwego/hertz/pkg/route"

	"DeadManSwitch/internal/handler"
	"DeadManSwitch/internal/middleware"
)

// Options 路由依赖，RateLimiter 为 nil 时不限流
type Options struct {
	ServiceName  string
	IsProduction bool
	TriggerToken string
	RateLimiter  *middleware.RateLimiter
}

func Register(e *route.Engine, checkIn *handler.CheckInHandler, opts Options) {
	e.Use(middleware.RecoverMiddleware(opts.IsProduction))
	e.Use(middleware.OpenTelemetryMiddleware(opts.ServiceName))

	e.GET("/healthz", handler.Healthz)

	v1 := e.Group("/v1")
	v1.Use(middleware.TriggerTokenMiddleware(opts.TriggerToken))
	{
		if opts.RateLimiter != nil {
			v1.POST("/cycles", middleware.RateLimitMiddleware(opts.RateLimiter), checkIn.TriggerCycle)
		} else {
			v1.POST("/cycles", checkIn.TriggerCycle)
		}
		v1.GET("/record", checkIn.GetRecord)
	}
}
