package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DeadManSwitch/internal/checkin"
	"DeadManSwitch/internal/model"
	"DeadManSwitch/pkg/errors"
)

func sampleOutcome() checkin.Outcome {
	started := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	rec := model.NewTemplate(started)
	rec.DaysElapsed = 5

	return checkin.Outcome{
		CycleID:     77,
		Action:      checkin.ActionTick,
		Record:      rec,
		ReminderErr: stderrors.New("chat down"),
		StartedAt:   started,
		Duration:    time.Second,
	}
}

func TestNewCycleCompletedEvent(t *testing.T) {
	event := NewCycleCompletedEvent(sampleOutcome())

	assert.True(t, strings.HasPrefix(event.EventID, "cycle_77_"))
	assert.Equal(t, int64(77), event.CycleID)
	assert.Equal(t, "tick", event.Action)
	assert.Equal(t, 5, event.DaysElapsed)
	assert.Equal(t, "not checked in", event.Status)
	assert.Equal(t, "chat down", event.ReminderError)
	assert.Equal(t, "2024-03-01T09:00:00Z", event.OccurredAt)

	assert.NotEqual(t, event.EventID, NewCycleCompletedEvent(sampleOutcome()).EventID)
}

func TestCyclePublisher(t *testing.T) {
	var (
		gotExchange, gotKey, gotID string
		gotBody                    interface{}
	)
	p := NewCyclePublisher("dms.events", "checkin.cycle.completed")
	p.publish = func(_ context.Context, exchange, routingKey, messageID string, body interface{}) error {
		gotExchange, gotKey, gotID, gotBody = exchange, routingKey, messageID, body
		return nil
	}

	require.NoError(t, p.PublishCycleCompleted(context.Background(), sampleOutcome()))
	assert.Equal(t, "dms.events", gotExchange)
	assert.Equal(t, "checkin.cycle.completed", gotKey)

	event, ok := gotBody.(model.CycleCompletedEvent)
	require.True(t, ok)
	assert.Equal(t, event.EventID, gotID)

	p.publish = func(context.Context, string, string, string, interface{}) error {
		return stderrors.New("broker down")
	}
	assert.Error(t, p.PublishCycleCompleted(context.Background(), sampleOutcome()))
}

type fakeAuditWriter struct {
	rows map[string]model.CycleAudit
	err  error
}

func (f *fakeAuditWriter) Insert(_ context.Context, audit *model.CycleAudit) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.rows[audit.EventID]; ok {
		return false, nil
	}
	f.rows[audit.EventID] = *audit
	return true, nil
}

func TestHandleCycleCompleted(t *testing.T) {
	writer := &fakeAuditWriter{rows: make(map[string]model.CycleAudit)}
	handler := HandleCycleCompleted(writer)

	body, err := json.Marshal(NewCycleCompletedEvent(sampleOutcome()))
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), body))
	require.NoError(t, handler(context.Background(), body))
	require.Len(t, writer.rows, 1)

	for _, row := range writer.rows {
		assert.Equal(t, "tick", row.Action)
		assert.Equal(t, 5, row.DaysElapsed)
		assert.Equal(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), row.OccurredAt.UTC())
	}
}

func TestHandleCycleCompletedSkipsInvalid(t *testing.T) {
	handler := HandleCycleCompleted(&fakeAuditWriter{rows: make(map[string]model.CycleAudit)})

	for _, body := range []string{
		`not json`,
		`{"cycle_id":1}`,
		`{"event_id":"e1","occurred_at":"yesterday"}`,
	} {
		err := handler(context.Background(), []byte(body))
		var skip *errors.SkipMessageError
		assert.True(t, stderrors.As(err, &skip), body)
	}
}

func TestHandleCycleCompletedWriterError(t *testing.T) {
	handler := HandleCycleCompleted(&fakeAuditWriter{err: stderrors.New("db down")})

	body, err := json.Marshal(NewCycleCompletedEvent(sampleOutcome()))
	require.NoError(t, err)

	err = handler(context.Background(), body)
	require.Error(t, err)
	var skip *errors.SkipMessageError
	assert.False(t, stderrors.As(err, &skip))
}
