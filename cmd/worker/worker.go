package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"DeadManSwitch/config"
	"DeadManSwitch/internal/queue"
	"DeadManSwitch/internal/repository"
	"DeadManSwitch/pkg/logger"
	"DeadManSwitch/pkg/otel"
	"DeadManSwitch/storage"
	"DeadManSwitch/storage/database"
	"DeadManSwitch/storage/mq"
)

// worker 消费周期完成事件并写入审计表
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if cfg.OTelEnabled {
		otelCfg := otel.FromConfig(cfg)
		otelCfg.ServiceName = cfg.ServiceName + "-worker"
		shutdown, err := otel.Init(ctx, otelCfg)
		if err != nil {
			logger.Logger.Fatal("Failed to initialize OpenTelemetry", zap.Error(err))
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Logger.Warn("Failed to shutdown OpenTelemetry", zap.Error(err))
			}
		}()
	}

	// 审计表总在数据库中，与状态存储驱动无关
	if err := database.Init(cfg); err != nil {
		logger.Logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	if err := mq.Init(cfg); err != nil {
		logger.Logger.Fatal("Failed to initialize message queue", zap.Error(err))
	}
	defer storage.Close()

	logger.Logger.Info("Worker service starting",
		zap.String("service", cfg.ServiceName+"-worker"),
		zap.String("environment", cfg.Environment),
		zap.String("queue", cfg.AuditQueue),
	)

	if err := queue.StartCycleAuditConsumer(ctx, cfg, repository.NewAuditRepository(database.DB())); err != nil {
		logger.Logger.Error("Cycle audit consumer stopped", zap.Error(err))
	}

	logger.Logger.Info("Worker service shutting down gracefully")
}
