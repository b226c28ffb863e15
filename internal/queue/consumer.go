package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"DeadManSwitch/config"
	"DeadManSwitch/internal/model"
	"DeadManSwitch/pkg/errors"
	"DeadManSwitch/pkg/logger"
	"DeadManSwitch/storage/mq"
)

// AuditWriter 由 repository.AuditRepository 实现
type AuditWriter interface {
	Insert(ctx context.Context, audit *model.CycleAudit) (bool, error)
}

// StartCycleAuditConsumer 消费周期事件并写入审计表，阻塞直到 ctx 取消
func StartCycleAuditConsumer(ctx context.Context, cfg *config.Config, writer AuditWriter) error {
	return mq.Consume(ctx, mq.ConsumeOptions{
		Queue:         cfg.AuditQueue,
		Exchange:      cfg.EventsExchange,
		RoutingKey:    cfg.EventsRoutingKey,
		ConsumerTag:   "dms-cycle-audit",
		PrefetchCount: 10,
		Handler:       HandleCycleCompleted(writer),
	})
}

// HandleCycleCompleted 无法解析的消息直接丢弃，重复的 event_id 视为已处理
func HandleCycleCompleted(writer AuditWriter) mq.MessageHandler {
	return func(ctx context.Context, body []byte) error {
		var event model.CycleCompletedEvent
		if err := json.Unmarshal(body, &event); err != nil {
			return &errors.SkipMessageError{Reason: fmt.Sprintf("invalid cycle event: %v", err)}
		}
		if event.EventID == "" {
			return &errors.SkipMessageError{Reason: "cycle event without event_id"}
		}

		occurredAt, err := time.Parse(time.RFC3339, event.OccurredAt)
		if err != nil {
			return &errors.SkipMessageError{Reason: fmt.Sprintf("invalid occurred_at %q", event.OccurredAt)}
		}

		created, err := writer.Insert(ctx, &model.CycleAudit{
			EventID:          event.EventID,
			CycleID:          event.CycleID,
			Action:           event.Action,
			DaysElapsed:      event.DaysElapsed,
			Status:           event.Status,
			EmailSent:        event.EmailSent,
			NewRecord:        event.NewRecord,
			ReminderSent:     event.ReminderSent,
			ReminderError:    event.ReminderError,
			InboxUnavailable: event.InboxUnavailable,
			OccurredAt:       occurredAt,
		})
		if err != nil {
			return err
		}

		if !created {
			logger.Logger.Info("Cycle event already recorded, skipping",
				zap.String("event_id", event.EventID),
			)
			return nil
		}

		logger.Logger.Info("Recorded cycle audit",
			zap.String("event_id", event.EventID),
			zap.Int64("cycle_id", event.CycleID),
			zap.String("action", event.Action),
			zap.Int("days_elapsed", event.DaysElapsed),
		)
		return nil
	}
}
