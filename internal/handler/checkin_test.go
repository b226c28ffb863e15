package handler

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/route"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DeadManSwitch/internal/checkin"
	"DeadManSwitch/internal/model"
	"DeadManSwitch/pkg/errors"
)

type fakeService struct {
	outcome *checkin.Outcome
	runErr  error
	record  model.CheckInRecord
	curErr  error
	runs    int
}

func (f *fakeService) RunCycle(context.Context) (*checkin.Outcome, error) {
	f.runs++
	return f.outcome, f.runErr
}

func (f *fakeService) Current(context.Context) (model.CheckInRecord, error) {
	return f.record, f.curErr
}

func (f *fakeService) Threshold() int { return 84 }

func newTestEngine(svc CheckInService) *route.Engine {
	e := route.NewEngine(config.NewOptions([]config.Option{}))
	h := NewCheckInHandler(svc)
	e.GET("/healthz", Healthz)
	e.POST("/v1/cycles", h.TriggerCycle)
	e.GET("/v1/record", h.GetRecord)
	return e
}

func decodeData(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var resp struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Data
}

func decodeErrorCode(t *testing.T, body []byte) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Error.Code
}

func TestTriggerCycle(t *testing.T) {
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	rec := model.NewTemplate(now)
	rec.DaysElapsed = 2

	svc := &fakeService{outcome: &checkin.Outcome{
		CycleID:      1234567890123,
		Action:       checkin.ActionTick,
		Record:       rec,
		ReminderSent: false,
		ReminderErr:  stderrors.New("telegram down"),
		Duration:     1500 * time.Millisecond,
	}}
	e := newTestEngine(svc)

	body := []byte(`{"source":"cron"}`)
	w := ut.PerformRequest(e, http.MethodPost, "/v1/cycles",
		&ut.Body{Body: bytes.NewReader(body), Len: len(body)},
		ut.Header{Key: "Content-Type", Value: "application/json"},
	)
	resp := w.Result()

	require.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, 1, svc.runs)

	data := decodeData(t, resp.Body())
	assert.Equal(t, "1234567890123", data["cycle_id"])
	assert.Equal(t, "tick", data["action"])
	assert.Equal(t, "telegram down", data["reminder_error"])
	assert.EqualValues(t, 1500, data["duration_ms"])

	record, ok := data["record"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "not checked in", record["status"])
	assert.Equal(t, "no", record["emailSent"])
	assert.EqualValues(t, 2, record["noOfDaysElapsed"])
}

func TestTriggerCycleAcceptsArbitraryBody(t *testing.T) {
	svc := &fakeService{outcome: &checkin.Outcome{Action: checkin.ActionReset, Record: model.NewTemplate(time.Now())}}
	e := newTestEngine(svc)

	body := []byte("not json at all")
	w := ut.PerformRequest(e, http.MethodPost, "/v1/cycles", &ut.Body{Body: bytes.NewReader(body), Len: len(body)})

	assert.Equal(t, http.StatusOK, w.Result().StatusCode())
	assert.Equal(t, 1, svc.runs)
}

func TestTriggerCycleErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"in progress", errors.CycleInProgress, http.StatusConflict, errors.CycleInProgress.Code},
		{"escalation", errors.Wrap(errors.EscalationFailed, stderrors.New("smtp refused")), http.StatusBadGateway, errors.EscalationFailed.Code},
		{"store", errors.Wrap(errors.StoreFailed, stderrors.New("timeout")), http.StatusServiceUnavailable, errors.StoreFailed.Code},
		{"unknown", stderrors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEngine(&fakeService{runErr: tc.err})
			w := ut.PerformRequest(e, http.MethodPost, "/v1/cycles", nil)
			resp := w.Result()

			assert.Equal(t, tc.status, resp.StatusCode())
			assert.Equal(t, tc.code, decodeErrorCode(t, resp.Body()))
		})
	}
}

func TestGetRecord(t *testing.T) {
	rec := model.NewTemplate(time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	rec.Status = model.StatusCheckedIn
	rec.LastMessage = "alive"

	e := newTestEngine(&fakeService{record: rec})
	w := ut.PerformRequest(e, http.MethodGet, "/v1/record", nil)
	resp := w.Result()

	require.Equal(t, http.StatusOK, resp.StatusCode())
	data := decodeData(t, resp.Body())
	assert.EqualValues(t, 84, data["threshold"])

	record, ok := data["record"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "checked in", record["status"])
	assert.Equal(t, "alive", record["lastMessage"])
}

func TestGetRecordNotFound(t *testing.T) {
	e := newTestEngine(&fakeService{curErr: errors.RecordNotFound})
	w := ut.PerformRequest(e, http.MethodGet, "/v1/record", nil)
	resp := w.Result()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode())
	assert.Equal(t, errors.RecordNotFound.Code, decodeErrorCode(t, resp.Body()))
}

func TestHealthz(t *testing.T) {
	e := newTestEngine(&fakeService{})
	w := ut.PerformRequest(e, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, w.Result().StatusCode())
	assert.Equal(t, "ok", decodeData(t, w.Result().Body())["status"])
}
