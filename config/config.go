package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"DeadManSwitch/utils"
)

// 存储驱动
const (
	StoreDriverS3       = "s3"
	StoreDriverRedis    = "redis"
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// 运行锁驱动
const (
	LockDriverRedis = "redis"
	LockDriverLocal = "local"
)

type Config struct {
	// 服务配置
	ServerPort     string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost     string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment    string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName    string `env:"SERVICE_NAME" envDefault:"deadmanswitch"`
	ServiceVersion string `env:"SERVICE_VERSION" envDefault:"dev"`
	TriggerToken   string `env:"TRIGGER_TOKEN"` // 为空时不校验 X-Trigger-Token

	// 触发接口限流，仅在 Redis 可用时生效
	TriggerRateLimit  int           `env:"TRIGGER_RATE_LIMIT" envDefault:"6"`
	TriggerRateWindow time.Duration `env:"TRIGGER_RATE_WINDOW" envDefault:"1m"`

	// 状态存储
	StoreDriver string `env:"STORE_DRIVER" envDefault:"s3"` // s3, redis, postgres, memory
	StoreKey    string `env:"STORE_KEY" envDefault:"dmsDB.json"`

	// S3 配置，凭据走 AWS 默认链（AWS_ACCESS_KEY_ID 等）
	S3Bucket       string `env:"S3_BUCKET"`
	S3Prefix       string `env:"S3_PREFIX" envDefault:""`
	S3Region       string `env:"AWS_REGION"`
	S3Endpoint     string `env:"S3_ENDPOINT"`
	S3UsePathStyle bool   `env:"S3_USE_PATH_STYLE" envDefault:"false"`

	// PostgreSQL 配置
	PostgreSQLHost     string `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort     string `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser     string `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword string `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase string `env:"POSTGRESQL_DATABASE" envDefault:"deadmanswitch"`
	PostgreSQLSchema   string `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode  string `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle  int    `env:"POSTGRESQL_MAX_IDLE" envDefault:"2"`
	PostgreSQLMaxOpen  int    `env:"POSTGRESQL_MAX_OPEN" envDefault:"5"`

	// Redis 配置
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"dms"`

	// RabbitMQ 配置
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`

	// 周期事件
	EventsEnabled    bool   `env:"EVENTS_ENABLED" envDefault:"false"`
	EventsExchange   string `env:"EVENTS_EXCHANGE" envDefault:"dms.events"`
	EventsRoutingKey string `env:"EVENTS_ROUTING_KEY" envDefault:"checkin.cycle.completed"`
	AuditQueue       string `env:"AUDIT_QUEUE" envDefault:"dms.cycle.audit"`

	// Telegram
	TelegramToken       string `env:"TELEGRAM_TOKEN"`
	TelegramChatID      int64  `env:"TELEGRAM_CHAT_ID"`
	TelegramReadTimeout int    `env:"TELEGRAM_READ_TIMEOUT" envDefault:"30"` // 秒
	TelegramAPIEndpoint string `env:"TELEGRAM_API_ENDPOINT" envDefault:"https://api.telegram.org/bot%s/%s"`
	ReminderText        string `env:"REMINDER_TEXT" envDefault:"Please check in"`

	// SMTP
	SMTPServer           string   `env:"SMTP_SERVER"`
	SMTPPort             int      `env:"SMTP_PORT" envDefault:"465"`
	EmailUsername        string   `env:"EMAIL_USERNAME"`
	EmailPassword        string   `env:"EMAIL_PASSWORD"`
	EscalationRecipients []string `env:"EMAIL_RECIPIENTS" envSeparator:","`
	EmailBccSender       bool     `env:"EMAIL_BCC_SENDER" envDefault:"true"`
	EscalationSubject    string   `env:"ESCALATION_SUBJECT" envDefault:"One last time..."`
	EscalationLink       string   `env:"LINK"`

	// 短信升级通知（可选）
	// AccessKey 通过阿里云 SDK 的环境变量自动获取：ALIBABA_CLOUD_ACCESS_KEY_ID / ALIBABA_CLOUD_ACCESS_KEY_SECRET
	SMSEnabled       bool     `env:"SMS_ENABLED" envDefault:"false"`
	SMSProvider      string   `env:"SMS_PROVIDER" envDefault:"aliyun"`
	SMSSignName      string   `env:"SMS_SIGN_NAME"`
	SMSTemplateCode  string   `env:"SMS_TEMPLATE_CODE"`
	EscalationPhones []string `env:"ESCALATION_PHONES" envSeparator:","`

	// 打卡状态机
	EscalationThreshold int           `env:"ESCALATION_THRESHOLD" envDefault:"84"` // 42 * 2
	LockDriver          string        `env:"LOCK_DRIVER" envDefault:"local"`       // redis, local
	LockTTL             time.Duration `env:"LOCK_TTL" envDefault:"5m"`
	CycleTimeout        time.Duration `env:"CYCLE_TIMEOUT" envDefault:"2m"`

	// 内置调度器（cmd/scheduler），每天在这些时刻各执行一个周期
	ScheduleTimes    []string `env:"SCHEDULE_TIMES" envSeparator:"," envDefault:"09:00:00,21:00:00"`
	ScheduleTimezone string   `env:"SCHEDULE_TIMEZONE" envDefault:"UTC"`

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 链路追踪 / 指标
	OTelEnabled     bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTelSampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"0.1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`
}

// Load 读取 .env 与环境变量并校验，进程启动时调用一次
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	return Parse()
}

// LoadUnchecked 读取配置但跳过必填校验，供 chat-id 等初始化命令使用
func LoadUnchecked() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	return parse()
}

// Parse 仅从环境变量解析，不读取 .env
func Parse() (*Config, error) {
	cfg, err := parse()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate 检查必填项，缺失即视为启动失败
func (c *Config) Validate() error {
	var missing []string

	if c.TelegramToken == "" {
		missing = append(missing, "TELEGRAM_TOKEN")
	}
	if c.TelegramChatID == 0 {
		missing = append(missing, "TELEGRAM_CHAT_ID")
	}

	if len(c.EscalationRecipients) == 0 {
		missing = append(missing, "EMAIL_RECIPIENTS")
	}
	if c.SMTPServer == "" {
		missing = append(missing, "SMTP_SERVER")
	}
	if c.EmailUsername == "" {
		missing = append(missing, "EMAIL_USERNAME")
	}
	if c.EmailPassword == "" {
		missing = append(missing, "EMAIL_PASSWORD")
	}

	switch c.StoreDriver {
	case StoreDriverS3:
		if c.S3Bucket == "" {
			missing = append(missing, "S3_BUCKET")
		}
	case StoreDriverRedis, StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER: %q", c.StoreDriver)
	}

	switch c.LockDriver {
	case LockDriverRedis, LockDriverLocal:
	default:
		return fmt.Errorf("unsupported LOCK_DRIVER: %q", c.LockDriver)
	}

	if c.SMSEnabled {
		if c.SMSSignName == "" {
			missing = append(missing, "SMS_SIGN_NAME")
		}
		if c.SMSTemplateCode == "" {
			missing = append(missing, "SMS_TEMPLATE_CODE")
		}
		if len(c.EscalationPhones) == 0 {
			missing = append(missing, "ESCALATION_PHONES")
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	// 模板记录的天数为 1，阈值必须大于 1 才能形成完整周期
	if c.EscalationThreshold < 2 {
		return fmt.Errorf("ESCALATION_THRESHOLD must be at least 2, got %d", c.EscalationThreshold)
	}

	if c.TelegramReadTimeout <= 0 {
		return fmt.Errorf("TELEGRAM_READ_TIMEOUT must be positive, got %d", c.TelegramReadTimeout)
	}

	// 锁必须比一次周期活得久，否则慢周期的锁会在运行中过期
	if c.CycleTimeout > 0 && c.LockTTL <= c.CycleTimeout {
		return fmt.Errorf("LOCK_TTL (%s) must be greater than CYCLE_TIMEOUT (%s)", c.LockTTL, c.CycleTimeout)
	}

	if _, err := c.ScheduleLocation(); err != nil {
		return err
	}
	for _, t := range c.ScheduleTimes {
		if _, err := utils.ParseTime(t, time.Now()); err != nil {
			return fmt.Errorf("invalid SCHEDULE_TIMES: %w", err)
		}
	}

	if c.TriggerToken == "" && c.IsProduction() {
		log.Printf("WARN: TRIGGER_TOKEN is not set, the cycle endpoint is unauthenticated")
	}

	return nil
}

func (c *Config) GetDSN() string {
	return "host=" + c.PostgreSQLHost +
		" port=" + c.PostgreSQLPort +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

// InboxTimeout Telegram 拉取消息的读超时
func (c *Config) InboxTimeout() time.Duration {
	return time.Duration(c.TelegramReadTimeout) * time.Second
}

// ScheduleLocation 调度时刻所在时区
func (c *Config) ScheduleLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ScheduleTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULE_TIMEZONE %q: %w", c.ScheduleTimezone, err)
	}
	return loc, nil
}

// NeedsRedis 存储或运行锁任一使用 Redis
func (c *Config) NeedsRedis() bool {
	return c.StoreDriver == StoreDriverRedis || c.LockDriver == LockDriverRedis
}

// NeedsDatabase 仅 postgres 存储需要数据库连接
func (c *Config) NeedsDatabase() bool {
	return c.StoreDriver == StoreDriverPostgres
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	cfg.EscalationRecipients = compact(cfg.EscalationRecipients)
	cfg.EscalationPhones = compact(cfg.EscalationPhones)
	cfg.ScheduleTimes = compact(cfg.ScheduleTimes)
	return cfg, nil
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
