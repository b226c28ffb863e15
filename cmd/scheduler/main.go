package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"DeadManSwitch/config"
	"DeadManSwitch/internal/schedule"
	"DeadManSwitch/internal/service"
	"DeadManSwitch/pkg/logger"
	"DeadManSwitch/pkg/metrics"
	"DeadManSwitch/pkg/otel"
	"DeadManSwitch/pkg/snowflake"
	"DeadManSwitch/storage"
)

// scheduler 在进程内按 SCHEDULE_TIMES 触发周期，不需要外部 cron 时使用
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Logger.Info("Scheduler received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if cfg.OTelEnabled {
		otelCfg := otel.FromConfig(cfg)
		otelCfg.ServiceName = cfg.ServiceName + "-scheduler"
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

	if err := metrics.InitMetrics(); err != nil {
		logger.Logger.Warn("Failed to initialize metrics", zap.Error(err))
	}

	// 与 server 区分 machine id，避免周期 ID 冲突
	if err := snowflake.Init((cfg.SnowflakeMachineID+1)%32, cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake for scheduler", zap.Error(err))
	}

	if err := storage.Init(cfg); err != nil {
		logger.Logger.Fatal("Failed to initialize storage for scheduler", zap.Error(err))
	}
	defer storage.Close()

	if err := service.Init(ctx, cfg); err != nil {
		logger.Logger.Fatal("Failed to initialize check-in service", zap.Error(err))
	}

	loc, err := cfg.ScheduleLocation()
	if err != nil {
		logger.Logger.Fatal("Invalid schedule timezone", zap.Error(err))
	}

	logger.Logger.Info("Scheduler service starting",
		zap.String("service", cfg.ServiceName+"-scheduler"),
		zap.String("environment", cfg.Environment),
		zap.Strings("times", cfg.ScheduleTimes),
		zap.String("timezone", loc.String()),
	)

	s := schedule.NewCycleScheduler(service.CheckIn(), cfg.ScheduleTimes, loc, logger.Logger)
	if err := s.Run(ctx); err != nil {
		logger.Logger.Fatal("Scheduler stopped", zap.Error(err))
	}

	logger.Logger.Info("Scheduler service shutting down gracefully")
}
