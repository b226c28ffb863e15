package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"DeadManSwitch/internal/checkin"
	"DeadManSwitch/internal/model"
	"DeadManSwitch/pkg/logger"
	"DeadManSwitch/storage/mq"
)

// PublishFunc 与 mq.PublishMessage 签名一致，测试中替换
type PublishFunc func(ctx context.Context, exchange, routingKey, messageID string, body interface{}) error

// CyclePublisher 把周期结果发布到事件 exchange，实现 checkin.EventPublisher
type CyclePublisher struct {
	exchange   string
	routingKey string
	publish    PublishFunc
}

var _ checkin.EventPublisher = (*CyclePublisher)(nil)

func NewCyclePublisher(exchange, routingKey string) *CyclePublisher {
	return &CyclePublisher{
		exchange:   exchange,
		routingKey: routingKey,
		publish:    mq.PublishMessage,
	}
}

// PublishCycleCompleted 发布周期完成事件
func (p *CyclePublisher) PublishCycleCompleted(ctx context.Context, outcome checkin.Outcome) error {
	event := NewCycleCompletedEvent(outcome)

	if err := p.publish(ctx, p.exchange, p.routingKey, event.EventID, event); err != nil {
		logger.Logger.Error("Failed to publish cycle completed event",
			zap.String("event_id", event.EventID),
			zap.Int64("cycle_id", event.CycleID),
			zap.Error(err),
		)
		return err
	}

	logger.Logger.Info("Published cycle completed event",
		zap.String("event_id", event.EventID),
		zap.Int64("cycle_id", event.CycleID),
		zap.String("action", event.Action),
	)
	return nil
}

// NewCycleCompletedEvent 由周期结果生成事件，EventID 每次调用唯一
func NewCycleCompletedEvent(outcome checkin.Outcome) model.CycleCompletedEvent {
	event := model.CycleCompletedEvent{
		EventID:          fmt.Sprintf("cycle_%d_%s", outcome.CycleID, uuid.NewString()),
		CycleID:          outcome.CycleID,
		Action:           outcome.Action.String(),
		DaysElapsed:      outcome.Record.DaysElapsed,
		Status:           outcome.Record.Status.String(),
		EmailSent:        outcome.Record.EmailSent,
		NewRecord:        outcome.NewRecord,
		ReminderSent:     outcome.ReminderSent,
		InboxUnavailable: outcome.InboxUnavailable,
		OccurredAt:       outcome.StartedAt.UTC().Format(time.RFC3339),
	}
	if outcome.ReminderErr != nil {
		event.ReminderError = outcome.ReminderErr.Error()
	}
	return event
}
