package router

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/route"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"DeadManSwitch/internal/checkin"
	"DeadManSwitch/internal/handler"
	"DeadManSwitch/internal/middleware"
	"DeadManSwitch/internal/model"
)

type stubService struct{}

func (stubService) RunCycle(context.Context) (*checkin.Outcome, error) {
	return &checkin.Outcome{Action: checkin.ActionTick, Record: model.NewTemplate(time.Now())}, nil
}

func (stubService) Current(context.Context) (model.CheckInRecord, error) {
	return model.NewTemplate(time.Now()), nil
}

func (stubService) Threshold() int { return 84 }

func newEngine(opts Options) *route.Engine {
	e := route.NewEngine(config.NewOptions([]config.Option{}))
	Register(e, handler.NewCheckInHandler(stubService{}), opts)
	return e
}

func TestRegisterRequiresToken(t *testing.T) {
	e := newEngine(Options{ServiceName: "deadmanswitch", TriggerToken: "s3cret"})

	w := ut.PerformRequest(e, http.MethodPost, "/v1/cycles", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Result().StatusCode())

	w = ut.PerformRequest(e, http.MethodPost, "/v1/cycles", nil,
		ut.Header{Key: middleware.TriggerTokenHeader, Value: "s3cret"})
	assert.Equal(t, http.StatusOK, w.Result().StatusCode())

	w = ut.PerformRequest(e, http.MethodGet, "/v1/record", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Result().StatusCode())

	// 健康检查不需要 token
	w = ut.PerformRequest(e, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Result().StatusCode())
}

func TestRegisterRateLimitsTrigger(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := middleware.NewRateLimiter(client, middleware.RateLimitConfig{
		Window:      time.Minute,
		MaxRequests: 2,
		KeyPrefix:   "dms",
	})
	e := newEngine(Options{ServiceName: "deadmanswitch", RateLimiter: limiter})

	for i := 0; i < 2; i++ {
		w := ut.PerformRequest(e, http.MethodPost, "/v1/cycles", nil)
		assert.Equal(t, http.StatusOK, w.Result().StatusCode())
	}

	w := ut.PerformRequest(e, http.MethodPost, "/v1/cycles", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Result().StatusCode())

	// 只读接口不受限流影响
	w = ut.PerformRequest(e, http.MethodGet, "/v1/record", nil)
	assert.Equal(t, http.StatusOK, w.Result().StatusCode())
}
