package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"DeadManSwitch/config"
	"DeadManSwitch/internal/cache"
	"DeadManSwitch/internal/checkin"
	"DeadManSwitch/internal/model"
	"DeadManSwitch/internal/notify"
	"DeadManSwitch/internal/queue"
	"DeadManSwitch/internal/repository"
	"DeadManSwitch/pkg/logger"
	"DeadManSwitch/pkg/mailer"
	"DeadManSwitch/pkg/metrics"
	"DeadManSwitch/pkg/sms"
	"DeadManSwitch/pkg/snowflake"
	"DeadManSwitch/pkg/telegram"
	"DeadManSwitch/storage/database"
	"DeadManSwitch/storage/objectstore"
	redisstore "DeadManSwitch/storage/redis"
	"DeadManSwitch/utils"
)

// CheckInService 组装状态机及其依赖，HTTP 与 CLI 共用
type CheckInService struct {
	cfg     *config.Config
	machine *checkin.Machine
}

var (
	checkInService *CheckInService
	checkInOnce    sync.Once
	checkInErr     error
)

// Init 构建全局实例，需在 storage.Init 之后调用
func Init(ctx context.Context, cfg *config.Config) error {
	checkInOnce.Do(func() {
		checkInService, checkInErr = NewCheckInService(ctx, cfg)
	})
	return checkInErr
}

func CheckIn() *CheckInService {
	if checkInService == nil {
		panic("check-in service not initialized, call service.Init() first")
	}
	return checkInService
}

// NewCheckInService 按配置选择存储、锁与通知渠道
func NewCheckInService(ctx context.Context, cfg *config.Config) (*CheckInService, error) {
	store, err := newStateStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	locker, err := newLocker(cfg)
	if err != nil {
		return nil, err
	}

	tg, err := telegram.New(telegram.Config{
		Token:       cfg.TelegramToken,
		ChatID:      cfg.TelegramChatID,
		APIEndpoint: cfg.TelegramAPIEndpoint,
		ReadTimeout: cfg.InboxTimeout(),
	})
	if err != nil {
		return nil, err
	}

	smsCfg, err := newSMSConfig(cfg)
	if err != nil {
		return nil, err
	}

	mail := mailer.New(mailer.Config{
		Host:      cfg.SMTPServer,
		Port:      cfg.SMTPPort,
		Username:  cfg.EmailUsername,
		Password:  cfg.EmailPassword,
		BccSender: cfg.EmailBccSender,
	})

	log := logger.Logger.With(zap.String("component", "checkin"))
	dispatcher := notify.NewDispatcher(tg, mail, smsCfg, metrics.GetMetrics(), log)

	plain, html := notify.EscalationBodies(cfg.EscalationLink)
	opts := checkin.Options{
		Key:          cfg.StoreKey,
		Threshold:    cfg.EscalationThreshold,
		ChatID:       cfg.TelegramChatID,
		ReminderText: cfg.ReminderText,
		LockTTL:      cfg.LockTTL,
		Escalation: checkin.EscalationEmail{
			Recipients: cfg.EscalationRecipients,
			Subject:    cfg.EscalationSubject,
			PlainBody:  plain,
			HTMLBody:   html,
		},
	}

	machineOpts := []checkin.Option{
		checkin.WithLogger(log),
		checkin.WithLocker(locker),
		checkin.WithMetrics(metrics.GetMetrics()),
		checkin.WithIDGenerator(snowflake.NextID),
	}
	if cfg.EventsEnabled {
		machineOpts = append(machineOpts, checkin.WithEvents(queue.NewCyclePublisher(cfg.EventsExchange, cfg.EventsRoutingKey)))
	}

	machine := checkin.NewMachine(store, notify.NewTelegramInbox(tg), dispatcher, opts, machineOpts...)

	logger.Logger.Info("Check-in service initialized",
		zap.String("store_driver", cfg.StoreDriver),
		zap.String("lock_driver", cfg.LockDriver),
		zap.Int("threshold", machine.Threshold()),
		zap.Bool("sms_enabled", smsCfg.Client != nil),
		zap.Bool("events_enabled", cfg.EventsEnabled),
	)

	return &CheckInService{cfg: cfg, machine: machine}, nil
}

// RunCycle 执行一个周期，受 CYCLE_TIMEOUT 约束
func (s *CheckInService) RunCycle(ctx context.Context) (*checkin.Outcome, error) {
	if s.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CycleTimeout)
		defer cancel()
	}
	return s.machine.RunCycle(ctx)
}

func (s *CheckInService) Current(ctx context.Context) (model.CheckInRecord, error) {
	return s.machine.Current(ctx)
}

func (s *CheckInService) Reset(ctx context.Context) (model.CheckInRecord, error) {
	return s.machine.Reset(ctx)
}

func (s *CheckInService) Threshold() int {
	return s.machine.Threshold()
}

func newStateStore(ctx context.Context, cfg *config.Config) (checkin.StateStore, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverS3:
		client, err := objectstore.NewS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return repository.NewS3Store(client, cfg.S3Bucket, cfg.S3Prefix), nil
	case config.StoreDriverRedis:
		return repository.NewRedisStore(redisstore.Client(), cfg.RedisPrefix), nil
	case config.StoreDriverPostgres:
		db := database.DB()
		if db == nil {
			return nil, fmt.Errorf("postgres store selected but database is not initialized")
		}
		return repository.NewPostgresStore(db), nil
	case config.StoreDriverMemory:
		logger.Logger.Warn("Using in-memory state store, the record is lost on restart")
		return repository.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER: %q", cfg.StoreDriver)
	}
}

func newLocker(cfg *config.Config) (checkin.Locker, error) {
	switch cfg.LockDriver {
	case config.LockDriverRedis:
		return cache.NewRedisLocker(redisstore.Client(), cfg.RedisPrefix), nil
	case config.LockDriverLocal:
		return checkin.NewLocalLocker(), nil
	default:
		return nil, fmt.Errorf("unsupported LOCK_DRIVER: %q", cfg.LockDriver)
	}
}

func newSMSConfig(cfg *config.Config) (notify.SMSConfig, error) {
	if !cfg.SMSEnabled {
		return notify.SMSConfig{}, nil
	}

	phones := make([]string, 0, len(cfg.EscalationPhones))
	for _, p := range cfg.EscalationPhones {
		normalized, ok := utils.NormalizePhone(p)
		if !ok {
			return notify.SMSConfig{}, fmt.Errorf("invalid ESCALATION_PHONES entry %s", sms.MaskPhone(p))
		}
		phones = append(phones, normalized)
	}

	client, err := sms.New(cfg)
	if err != nil {
		return notify.SMSConfig{}, err
	}
	return notify.SMSConfig{
		Client:       client,
		Phones:       phones,
		SignName:     cfg.SMSSignName,
		TemplateCode: cfg.SMSTemplateCode,
	}, nil
}
