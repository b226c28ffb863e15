package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics OpenTelemetry 指标集合
type OTelMetrics struct {
	// 周期相关指标
	CyclesTotal        metric.Int64Counter
	CycleDuration      metric.Float64Histogram
	CycleFailuresTotal metric.Int64Counter
	DaysElapsed        metric.Int64Gauge
	InboxFailuresTotal metric.Int64Counter
	LockContendedTotal metric.Int64Counter

	// 通知相关指标
	NotificationsTotal   metric.Int64Counter
	NotificationDuration metric.Float64Histogram
}

var (
	// 全局指标实例
	metrics *OTelMetrics
	once    sync.Once
	initErr error
)

// InitMetrics 初始化 OpenTelemetry 指标，需在 MeterProvider 设置之后调用
func InitMetrics() error {
	once.Do(func() {
		metrics, initErr = New(otel.Meter("deadmanswitch"))
	})
	return initErr
}

// New 基于给定 meter 创建指标集合
func New(meter metric.Meter) (*OTelMetrics, error) {
	var err error
	m := &OTelMetrics{}

	m.CyclesTotal, err = meter.Int64Counter(
		"dms_cycles_total",
		metric.WithDescription("Total number of check-in cycles by action"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	m.CycleDuration, err = meter.Float64Histogram(
		"dms_cycle_duration_seconds",
		metric.WithDescription("Time spent running a check-in cycle in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return nil, err
	}

	m.CycleFailuresTotal, err = meter.Int64Counter(
		"dms_cycle_failures_total",
		metric.WithDescription("Total number of aborted check-in cycles"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	m.DaysElapsed, err = meter.Int64Gauge(
		"dms_days_elapsed",
		metric.WithDescription("Elapsed cycles stored in the check-in record"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	m.InboxFailuresTotal, err = meter.Int64Counter(
		"dms_inbox_fetch_failures_total",
		metric.WithDescription("Total number of failed inbox fetches"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	m.LockContendedTotal, err = meter.Int64Counter(
		"dms_cycle_lock_contended_total",
		metric.WithDescription("Total number of cycles rejected because another cycle held the lock"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	m.NotificationsTotal, err = meter.Int64Counter(
		"dms_notifications_total",
		metric.WithDescription("Total number of notifications by channel and status"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return nil, err
	}

	m.NotificationDuration, err = meter.Float64Histogram(
		"dms_notification_duration_seconds",
		metric.WithDescription("Time spent delivering a notification in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// GetMetrics 获取全局指标实例，未初始化时返回 nil，调用方的方法均容忍 nil
func GetMetrics() *OTelMetrics {
	return metrics
}

// RecordCycle 记录一次完成的周期
func (m *OTelMetrics) RecordCycle(ctx context.Context, action string, days int, duration float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("action", action))
	m.CyclesTotal.Add(ctx, 1, attrs)
	m.CycleDuration.Record(ctx, duration, attrs)
	m.DaysElapsed.Record(ctx, int64(days))
}

// RecordCycleFailure 记录中断的周期
func (m *OTelMetrics) RecordCycleFailure(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.CycleFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordInboxFailure 记录收件箱拉取失败
func (m *OTelMetrics) RecordInboxFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.InboxFailuresTotal.Add(ctx, 1)
}

// RecordLockContended 记录锁冲突
func (m *OTelMetrics) RecordLockContended(ctx context.Context) {
	if m == nil {
		return
	}
	m.LockContendedTotal.Add(ctx, 1)
}

// RecordNotification 记录一次通知投递
func (m *OTelMetrics) RecordNotification(ctx context.Context, channel string, err error, duration float64) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	attrs := metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("status", status),
	)
	m.NotificationsTotal.Add(ctx, 1, attrs)
	m.NotificationDuration.Record(ctx, duration, attrs)
}
