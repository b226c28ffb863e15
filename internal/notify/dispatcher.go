package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"DeadManSwitch/internal/checkin"
	"DeadManSwitch/pkg/metrics"
	"DeadManSwitch/pkg/sms"
)

// 渠道名，同时作为指标标签
const (
	ChannelTelegram = "telegram"
	ChannelEmail    = "email"
	ChannelSMS      = "sms"
)

// ChatSender 聊天渠道
type ChatSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// MailSender 邮件渠道
type MailSender interface {
	Send(ctx context.Context, to []string, subject, plain, html string) error
}

// SMSConfig 升级短信参数，Client 为 nil 时不发短信
type SMSConfig struct {
	Client        sms.Client
	Phones        []string
	SignName      string
	TemplateCode  string
	TemplateParam string
}

// Dispatcher 实现 checkin.Notifier：提醒走聊天，升级走邮件并附带可选短信
type Dispatcher struct {
	chat    ChatSender
	mail    MailSender
	sms     SMSConfig
	metrics *metrics.OTelMetrics
	logger  *zap.Logger
}

var _ checkin.Notifier = (*Dispatcher)(nil)

func NewDispatcher(chat ChatSender, mail MailSender, smsCfg SMSConfig, om *metrics.OTelMetrics, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		chat:    chat,
		mail:    mail,
		sms:     smsCfg,
		metrics: om,
		logger:  logger,
	}
}

func (d *Dispatcher) SendReminder(ctx context.Context, chatID int64, text string) error {
	start := time.Now()
	err := d.chat.SendText(ctx, chatID, text)
	d.metrics.RecordNotification(ctx, ChannelTelegram, err, time.Since(start).Seconds())

	if err != nil {
		return err
	}
	d.logger.Info("Reminder sent", zap.Int64("chat_id", chatID))
	return nil
}

// SendEscalationEmail 邮件失败即返回错误；短信只在邮件成功后尝试，失败仅记录
func (d *Dispatcher) SendEscalationEmail(ctx context.Context, email checkin.EscalationEmail) error {
	start := time.Now()
	err := d.mail.Send(ctx, email.Recipients, email.Subject, email.PlainBody, email.HTMLBody)
	d.metrics.RecordNotification(ctx, ChannelEmail, err, time.Since(start).Seconds())
	if err != nil {
		return err
	}

	d.sendEscalationSMS(ctx)
	return nil
}

func (d *Dispatcher) sendEscalationSMS(ctx context.Context) {
	if d.sms.Client == nil || len(d.sms.Phones) == 0 {
		return
	}

	start := time.Now()
	err := d.sms.Client.SendBatch(ctx, d.sms.Phones, d.sms.SignName, d.sms.TemplateCode, d.sms.TemplateParam)
	d.metrics.RecordNotification(ctx, ChannelSMS, err, time.Since(start).Seconds())

	masked := make([]string, len(d.sms.Phones))
	for i, p := range d.sms.Phones {
		masked[i] = sms.MaskPhone(p)
	}

	if err != nil {
		d.logger.Warn("Failed to send escalation SMS", zap.Strings("phones", masked), zap.Error(err))
		return
	}
	d.logger.Info("Escalation SMS sent", zap.Strings("phones", masked))
}
