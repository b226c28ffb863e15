package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"go.uber.org/zap"

	"DeadManSwitch/config"
	"DeadManSwitch/internal/handler"
	"DeadManSwitch/internal/middleware"
	"DeadManSwitch/internal/router"
	"DeadManSwitch/internal/service"
	"DeadManSwitch/pkg/logger"
	"DeadManSwitch/pkg/metrics"
	"DeadManSwitch/pkg/otel"
	"DeadManSwitch/pkg/snowflake"
	"DeadManSwitch/storage"
	redisstore "DeadManSwitch/storage/redis"
)

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
		shutdown, err := otel.Init(ctx, otel.FromConfig(cfg))
		if err != nil {
			logger.Logger.Fatal("Failed to initialize OpenTelemetry", zap.Error(err))
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Logger.Warn("Failed to shutdown OpenTelemetry", zap.Error(err))
			}
		}()
	}

	// 未启用 OTel 时使用全局 noop provider，指标调用照常
	if err := metrics.InitMetrics(); err != nil {
		logger.Logger.Warn("Failed to initialize metrics", zap.Error(err))
	}

	if err := snowflake.Init(cfg.SnowflakeMachineID, cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	// 初始化存储层，记得关闭外部连接
	if err := storage.Init(cfg); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	if err := service.Init(ctx, cfg); err != nil {
		logger.Logger.Fatal("Failed to initialize check-in service", zap.Error(err))
	}

	opts := router.Options{
		ServiceName:  cfg.ServiceName,
		IsProduction: cfg.IsProduction(),
		TriggerToken: cfg.TriggerToken,
	}
	if cfg.NeedsRedis() {
		opts.RateLimiter = middleware.NewRateLimiter(redisstore.Client(), middleware.RateLimitConfig{
			Window:      cfg.TriggerRateWindow,
			MaxRequests: cfg.TriggerRateLimit,
			KeyPrefix:   cfg.RedisPrefix,
		})
	}

	logger.Logger.Info("Server starting",
		zap.String("service", cfg.ServiceName),
		zap.String("port", cfg.ServerPort),
		zap.String("environment", cfg.Environment),
		zap.String("store_driver", cfg.StoreDriver),
		zap.String("lock_driver", cfg.LockDriver),
		zap.Int("threshold", cfg.EscalationThreshold),
	)

	addr := net.JoinHostPort(cfg.ServerHost, cfg.ServerPort)
	h := server.Default(
		server.WithHostPorts(addr),
		server.WithExitWaitTime(cfg.CycleTimeout),
	)

	router.Register(h.Engine, handler.NewCheckInHandler(service.CheckIn()), opts)

	// 优雅关闭：等待进行中的周期完成后再退出
	go func() {
		<-ctx.Done()
		logger.Logger.Info("Initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.CycleTimeout+5*time.Second)
		defer cancel()

		if err := h.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Error("Failed to shutdown HTTP server", zap.Error(err))
		}
	}()

	logger.Logger.Info("HTTP server listening", zap.String("addr", addr))

	h.Spin()

	logger.Logger.Info("Server shutting down gracefully")
}
