package mq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"DeadManSwitch/config"
	"DeadManSwitch/pkg/logger"
)

var (
	conn     *amqp.Connection
	connMu   sync.RWMutex
	exchange string
)

// Init 建立连接并声明周期事件的 topic exchange
func Init(cfg *config.Config) error {
	c, err := amqp.Dial(cfg.GetRabbitMQURL())
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := c.Channel()
	if err != nil {
		_ = c.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(
		cfg.EventsExchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = c.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", cfg.EventsExchange, err)
	}

	connMu.Lock()
	conn = c
	exchange = cfg.EventsExchange
	connMu.Unlock()

	logger.Logger.Info("RabbitMQ initialized",
		zap.String("addr", cfg.RabbitMQAddr),
		zap.String("exchange", cfg.EventsExchange),
	)
	return nil
}

func Connection() *amqp.Connection {
	connMu.RLock()
	defer connMu.RUnlock()
	return conn
}

// Exchange 已声明的事件 exchange 名称
func Exchange() string {
	connMu.RLock()
	defer connMu.RUnlock()
	return exchange
}

// Close 关闭发布 channel 与连接
func Close(ctx context.Context) error {
	closePublisherChannel()

	connMu.Lock()
	c := conn
	conn = nil
	connMu.Unlock()

	if c == nil || c.IsClosed() {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- c.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
