package sms

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"DeadManSwitch/config"
	"DeadManSwitch/pkg/logger"
)

// Client 短信客户端接口
type Client interface {
	// SendBatch 向多个号码发送同一模板短信
	// templateParam: 模板参数（JSON 字符串），所有号码共用
	SendBatch(ctx context.Context, phones []string, signName, templateCode, templateParam string) error
}

// New 按 SMS_PROVIDER 创建客户端
func New(cfg *config.Config) (Client, error) {
	var (
		client Client
		err    error
	)

	switch cfg.SMSProvider {
	case "aliyun":
		client, err = NewAliyunClient()
	case "mock":
		client = NewMockClient()
	default:
		err = fmt.Errorf("unsupported SMS provider: %s", cfg.SMSProvider)
	}

	if err != nil {
		logger.Logger.Error("Failed to initialize SMS client", zap.Error(err))
		return nil, err
	}

	logger.Logger.Info("SMS client initialized successfully", zap.String("provider", cfg.SMSProvider))
	return client, nil
}

// MaskPhone 日志里只保留前三位与后四位
func MaskPhone(phone string) string {
	if len(phone) < 8 {
		return "****"
	}
	return phone[:3] + "****" + phone[len(phone)-4:]
}
