package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"DeadManSwitch/internal/model"
	"DeadManSwitch/pkg/logger"
)

// Migrate 创建记录文档表与审计表
func Migrate(db *gorm.DB) error {
	if db == nil {
		return gorm.ErrInvalidDB
	}

	logger.Logger.Info("Starting database migration...")

	err := db.AutoMigrate(
		&model.CheckInDocument{},
		&model.CycleAudit{},
	)
	if err != nil {
		logger.Logger.Error("Database migration failed", zap.Error(err))
		return err
	}

	logger.Logger.Info("Database migration completed successfully")
	return nil
}
