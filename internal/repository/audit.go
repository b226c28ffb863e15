package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"DeadManSwitch/internal/model"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert 写入审计记录，event_id 已存在时忽略并返回 false
func (r *AuditRepository) Insert(ctx context.Context, audit *model.CycleAudit) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(audit)
	if result.Error != nil {
		return false, fmt.Errorf("failed to insert cycle audit: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Recent 按发生时间倒序取最近的审计记录
func (r *AuditRepository) Recent(ctx context.Context, limit int) ([]model.CycleAudit, error) {
	var audits []model.CycleAudit
	err := r.db.WithContext(ctx).Order("occurred_at DESC").Limit(limit).Find(&audits).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cycle audits: %w", err)
	}
	return audits, nil
}
