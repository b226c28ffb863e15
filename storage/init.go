package storage

import (
	"DeadManSwitch/config"
	"DeadManSwitch/storage/database"
	"DeadManSwitch/storage/mq"
	"DeadManSwitch/storage/redis"
)

// Init 按配置只初始化实际用到的后端
func Init(cfg *config.Config) error {
	if cfg.NeedsDatabase() {
		if err := database.Init(cfg); err != nil {
			return err
		}
	}

	if cfg.NeedsRedis() {
		if err := redis.Init(cfg); err != nil {
			return err
		}
	}

	if cfg.EventsEnabled {
		if err := mq.Init(cfg); err != nil {
			return err
		}
	}

	return nil
}
