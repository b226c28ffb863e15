package handler

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"go.uber.org/zap"

	"DeadManSwitch/internal/checkin"
	"DeadManSwitch/internal/model"
	"DeadManSwitch/pkg/logger"
	"DeadManSwitch/pkg/response"
)

// CheckInService 由 service.CheckInService 实现
type CheckInService interface {
	RunCycle(ctx context.Context) (*checkin.Outcome, error)
	Current(ctx context.Context) (model.CheckInRecord, error)
	Threshold() int
}

type CheckInHandler struct {
	svc CheckInService
}

func NewCheckInHandler(svc CheckInService) *CheckInHandler {
	return &CheckInHandler{svc: svc}
}

// TriggerRequest 触发事件，内容不参与决策，只记录来源
type TriggerRequest struct {
	Source string `json:"source"`
}

// CycleResponse 周期执行结果
type CycleResponse struct {
	CycleID          string              `json:"cycle_id"`
	Action           string              `json:"action"`
	NewRecord        bool                `json:"new_record"`
	InboxUnavailable bool                `json:"inbox_unavailable"`
	ReminderSent     bool                `json:"reminder_sent"`
	ReminderError    string              `json:"reminder_error,omitempty"`
	DurationMs       int64               `json:"duration_ms"`
	Record           model.CheckInRecord `json:"record"`
}

// RecordResponse 当前记录与升级阈值
type RecordResponse struct {
	Record    model.CheckInRecord `json:"record"`
	Threshold int                 `json:"threshold"`
}

// TriggerCycle POST /v1/cycles
func (h *CheckInHandler) TriggerCycle(ctx context.Context, c *app.RequestContext) {
	var req TriggerRequest
	if body := c.Request.Body(); len(body) > 0 {
		// 触发事件格式不固定，解析失败时忽略
		_ = json.Unmarshal(body, &req)
	}
	if req.Source == "" {
		req.Source = "http"
	}

	logger.Logger.Info("Check-in cycle triggered",
		zap.String("source", req.Source),
		zap.String("client_ip", c.ClientIP()),
	)

	outcome, err := h.svc.RunCycle(ctx)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	resp := CycleResponse{
		CycleID:          strconv.FormatInt(outcome.CycleID, 10),
		Action:           outcome.Action.String(),
		NewRecord:        outcome.NewRecord,
		InboxUnavailable: outcome.InboxUnavailable,
		ReminderSent:     outcome.ReminderSent,
		DurationMs:       outcome.Duration.Milliseconds(),
		Record:           outcome.Record,
	}
	if outcome.ReminderErr != nil {
		resp.ReminderError = outcome.ReminderErr.Error()
	}

	response.Success(ctx, c, resp)
}

// GetRecord GET /v1/record
func (h *CheckInHandler) GetRecord(ctx context.Context, c *app.RequestContext) {
	rec, err := h.svc.Current(ctx)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, RecordResponse{Record: rec, Threshold: h.svc.Threshold()})
}

// Healthz GET /healthz
func Healthz(ctx context.Context, c *app.RequestContext) {
	response.Success(ctx, c, map[string]string{"status": "ok"})
}
