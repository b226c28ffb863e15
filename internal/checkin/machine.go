package checkin

// 打卡状态机：每次触发执行一个「读取 -> 拉取消息 -> 决策 -> 持久化」周期
// 前提：同一时刻只有一个周期在运行，HTTP 触发场景下由 Locker 保证

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"DeadManSwitch/internal/model"
	"DeadManSwitch/pkg/errors"
	"DeadManSwitch/pkg/metrics"
)

// StateStore 按 key 读写一份 JSON 文档，不存在时返回 errors.RecordNotFound
type StateStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, doc []byte) error
}

// InboxMessage 收到的最新一条消息
type InboxMessage struct {
	Text   string
	SentAt time.Time
}

// MessageInbox 拉取发给机器人的最新消息，ok 为 false 表示没有新消息
type MessageInbox interface {
	FetchLatest(ctx context.Context) (msg InboxMessage, ok bool, err error)
}

// EscalationEmail 升级邮件内容
type EscalationEmail struct {
	Recipients []string
	Subject    string
	PlainBody  string
	HTMLBody   string
}

// Notifier 提醒走聊天渠道，升级走邮件
type Notifier interface {
	SendReminder(ctx context.Context, chatID int64, text string) error
	SendEscalationEmail(ctx context.Context, email EscalationEmail) error
}

// EventPublisher 周期完成事件的发布者，可选
type EventPublisher interface {
	PublishCycleCompleted(ctx context.Context, outcome Outcome) error
}

// Locker 周期互斥锁，可选
type Locker interface {
	// TryLock 成功时返回本次持有的 token
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	// Unlock 只释放 token 对应的持有，锁已过期并被他人获取时不做任何事
	Unlock(ctx context.Context, key, token string) error
}

// Options 状态机运行参数，由配置构造一次
type Options struct {
	Key          string
	Threshold    int
	ChatID       int64
	ReminderText string
	Escalation   EscalationEmail
	LockTTL      time.Duration
}

// Outcome 单个周期的执行结果
type Outcome struct {
	CycleID          int64
	Action           Action
	Record           model.CheckInRecord
	NewRecord        bool
	InboxUnavailable bool
	ReminderSent     bool
	ReminderErr      error
	StartedAt        time.Time
	Duration         time.Duration
}

type Machine struct {
	store    StateStore
	inbox    MessageInbox
	notifier Notifier
	opts     Options

	locker  Locker
	events  EventPublisher
	logger  *zap.Logger
	metrics *metrics.OTelMetrics
	tracer  trace.Tracer
	now     func() time.Time
	nextID  func() (int64, error)
}

// Option 可选依赖注入
type Option func(*Machine)

func WithLogger(l *zap.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithLocker(l Locker) Option {
	return func(m *Machine) { m.locker = l }
}

func WithEvents(p EventPublisher) Option {
	return func(m *Machine) { m.events = p }
}

func WithMetrics(om *metrics.OTelMetrics) Option {
	return func(m *Machine) { m.metrics = om }
}

func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

func WithIDGenerator(next func() (int64, error)) Option {
	return func(m *Machine) { m.nextID = next }
}

func NewMachine(store StateStore, inbox MessageInbox, notifier Notifier, opts Options, options ...Option) *Machine {
	if opts.Threshold == 0 {
		opts.Threshold = DefaultEscalationThreshold
	}
	if opts.LockTTL == 0 {
		opts.LockTTL = 5 * time.Minute
	}

	m := &Machine{
		store:    store,
		inbox:    inbox,
		notifier: notifier,
		opts:     opts,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer("DeadManSwitch/internal/checkin"),
		now:      time.Now,
	}
	for _, o := range options {
		o(m)
	}
	return m
}

// Threshold 当前生效的升级阈值
func (m *Machine) Threshold() int {
	return m.opts.Threshold
}

// RunCycle 执行一个完整周期。存储读写失败、升级邮件发送失败时中断且不落库
func (m *Machine) RunCycle(ctx context.Context) (*Outcome, error) {
	startedAt := m.now()
	ctx, span := m.tracer.Start(ctx, "checkin.cycle")
	defer span.End()

	outcome := &Outcome{StartedAt: startedAt, CycleID: m.cycleID()}
	log := m.logger.With(zap.Int64("cycle_id", outcome.CycleID))
	span.SetAttributes(attribute.Int64("dms.cycle_id", outcome.CycleID))

	if m.locker != nil {
		lockKey := "cycle:" + m.opts.Key
		token, acquired, err := m.locker.TryLock(ctx, lockKey, m.opts.LockTTL)
		if err != nil {
			m.fail(ctx, span, "lock", err)
			return nil, fmt.Errorf("failed to acquire cycle lock: %w", err)
		}
		if !acquired {
			m.metrics.RecordLockContended(ctx)
			log.Warn("Check-in cycle already running, skipping")
			span.SetStatus(codes.Error, errors.CycleInProgress.Message)
			return nil, errors.CycleInProgress
		}
		defer func() {
			if err := m.locker.Unlock(context.WithoutCancel(ctx), lockKey, token); err != nil {
				log.Warn("Failed to release cycle lock", zap.Error(err))
			}
		}()
	}

	rec, isNew, err := m.loadOrCreate(ctx, startedAt)
	if err != nil {
		m.fail(ctx, span, "load", err)
		return nil, err
	}
	outcome.NewRecord = isNew

	msg, hasMessage, err := m.inbox.FetchLatest(ctx)
	if err != nil {
		// 收件箱失败按「没有新消息」处理
		m.metrics.RecordInboxFailure(ctx)
		log.Warn("Failed to fetch latest inbox message, treating as empty", zap.Error(err))
		outcome.InboxUnavailable = true
		hasMessage = false
	}

	action := Decide(rec, hasMessage, m.opts.Threshold)
	outcome.Action = action
	span.SetAttributes(
		attribute.String("dms.action", action.String()),
		attribute.Int("dms.days_elapsed.before", rec.DaysElapsed),
		attribute.Bool("dms.new_record", isNew),
	)

	log.Info("Evaluating check-in cycle",
		zap.String("action", action.String()),
		zap.Int("days_elapsed", rec.DaysElapsed),
		zap.Stringer("status", rec.Status),
		zap.Bool("email_sent", rec.EmailSent),
		zap.Bool("has_message", hasMessage),
		zap.Bool("new_record", isNew),
	)

	switch action {
	case ActionEscalate:
		if err := m.notifier.SendEscalationEmail(ctx, m.opts.Escalation); err != nil {
			m.fail(ctx, span, "escalate", err)
			return nil, errors.Wrap(errors.EscalationFailed, err)
		}
		log.Info("Escalation email sent", zap.Int("recipient_count", len(m.opts.Escalation.Recipients)))
		rec.EmailSent = true
		rec.DaysElapsed++
		rec.LastChecked = startedAt

	case ActionRecordCheckIn:
		rec.LastMessage = msg.Text
		rec.Status = model.StatusCheckedIn
		rec.DaysElapsed++
		rec.LastChecked = startedAt

	case ActionReset:
		rec = model.NewTemplate(startedAt)

	case ActionTick:
		if rec.Status == model.StatusNotCheckedIn {
			// 提醒失败不中断：天数代表时间流逝，聊天渠道故障不能推迟升级
			if err := m.notifier.SendReminder(ctx, m.opts.ChatID, m.opts.ReminderText); err != nil {
				outcome.ReminderErr = err
				log.Warn("Failed to send reminder, continuing cycle", zap.Error(err))
			} else {
				outcome.ReminderSent = true
			}
		}
		if !isNew {
			rec.DaysElapsed++
		}
		rec.LastChecked = startedAt
	}

	if err := m.save(ctx, rec); err != nil {
		m.fail(ctx, span, "save", err)
		return nil, err
	}

	outcome.Record = rec
	outcome.Duration = m.now().Sub(startedAt)

	m.metrics.RecordCycle(ctx, action.String(), rec.DaysElapsed, outcome.Duration.Seconds())
	span.SetAttributes(attribute.Int("dms.days_elapsed.after", rec.DaysElapsed))
	span.SetStatus(codes.Ok, "cycle completed")

	log.Info("Check-in cycle completed",
		zap.String("action", action.String()),
		zap.Int("days_elapsed", rec.DaysElapsed),
		zap.Stringer("status", rec.Status),
		zap.Bool("email_sent", rec.EmailSent),
		zap.Duration("duration", outcome.Duration),
	)

	if m.events != nil {
		if err := m.events.PublishCycleCompleted(ctx, *outcome); err != nil {
			log.Warn("Failed to publish cycle completed event", zap.Error(err))
		}
	}

	return outcome, nil
}

// Current 读取当前记录，不存在时返回 errors.RecordNotFound
func (m *Machine) Current(ctx context.Context) (model.CheckInRecord, error) {
	doc, err := m.store.Load(ctx, m.opts.Key)
	if err != nil {
		if stderrors.Is(err, errors.RecordNotFound) {
			return model.CheckInRecord{}, errors.RecordNotFound
		}
		return model.CheckInRecord{}, errors.Wrap(errors.StoreFailed, err)
	}

	rec, err := model.DecodeRecord(doc)
	if err != nil {
		return model.CheckInRecord{}, errors.Wrap(errors.RecordCorrupt, err)
	}
	return rec, nil
}

// Reset 人工把记录覆盖为模板
func (m *Machine) Reset(ctx context.Context) (model.CheckInRecord, error) {
	rec := model.NewTemplate(m.now())
	if err := m.save(ctx, rec); err != nil {
		return model.CheckInRecord{}, err
	}
	m.logger.Info("Check-in record reset manually")
	return rec, nil
}

// loadOrCreate 读取记录，不存在时写入模板并标记为新记录
func (m *Machine) loadOrCreate(ctx context.Context, now time.Time) (model.CheckInRecord, bool, error) {
	rec, err := m.Current(ctx)
	if err == nil {
		return rec, false, nil
	}
	if !stderrors.Is(err, errors.RecordNotFound) {
		return model.CheckInRecord{}, false, err
	}

	rec = model.NewTemplate(now)
	if err := m.save(ctx, rec); err != nil {
		return model.CheckInRecord{}, false, err
	}
	m.logger.Info("Created check-in record from template", zap.String("key", m.opts.Key))
	return rec, true, nil
}

func (m *Machine) save(ctx context.Context, rec model.CheckInRecord) error {
	doc, err := model.EncodeRecord(rec)
	if err != nil {
		return errors.Wrap(errors.RecordCorrupt, err)
	}
	if err := m.store.Save(ctx, m.opts.Key, doc); err != nil {
		return errors.Wrap(errors.StoreFailed, err)
	}
	return nil
}

func (m *Machine) cycleID() int64 {
	if m.nextID == nil {
		return 0
	}
	id, err := m.nextID()
	if err != nil {
		m.logger.Warn("Failed to generate cycle ID", zap.Error(err))
		return 0
	}
	return id
}

func (m *Machine) fail(ctx context.Context, span trace.Span, stage string, err error) {
	m.metrics.RecordCycleFailure(ctx, stage)
	span.RecordError(err)
	span.SetStatus(codes.Error, stage+" failed")
	m.logger.Error("Check-in cycle aborted", zap.String("stage", stage), zap.Error(err))
}
