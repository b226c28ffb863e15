package cli

import (
	"context"
	"fmt"
	"strings"

	"DeadManSwitch/config"
	"DeadManSwitch/internal/service"
	"DeadManSwitch/pkg/logger"
	"DeadManSwitch/pkg/metrics"
	"DeadManSwitch/pkg/snowflake"
	"DeadManSwitch/storage"
)

// loadConfig 日志默认输出到 stderr，stdout 留给命令结果
func loadConfig(validate bool) (*config.Config, error) {
	load := config.Load
	if !validate {
		load = config.LoadUnchecked
	}

	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if cfg.LoggerOutputPath == "" || strings.EqualFold(cfg.LoggerOutputPath, "stdout") {
		cfg.LoggerOutputPath = "stderr"
	}

	logger.Init(cfg)
	return cfg, nil
}

// newService 与 server 相同的装配流程，返回的 cleanup 关闭存储连接
func newService(ctx context.Context) (*service.CheckInService, func(), error) {
	cfg, err := loadConfig(true)
	if err != nil {
		return nil, nil, err
	}

	if err := metrics.InitMetrics(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	if err := snowflake.Init(cfg.SnowflakeMachineID, cfg.SnowflakeDataCenter); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize snowflake: %w", err)
	}
	if err := storage.Init(cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	cleanup := func() {
		storage.Close()
		logger.Sync()
	}

	svc, err := service.NewCheckInService(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return svc, cleanup, nil
}
