package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"DeadManSwitch/internal/model"
	"DeadManSwitch/pkg/errors"
)

// PostgresStore 记录文档存在 check_in_documents 表的一行里
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Load(ctx context.Context, key string) ([]byte, error) {
	var doc model.CheckInDocument
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&doc).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.RecordNotFound
		}
		return nil, fmt.Errorf("failed to query check-in document: %w", err)
	}
	return []byte(doc.Body), nil
}

func (s *PostgresStore) Save(ctx context.Context, key string, doc []byte) error {
	row := model.CheckInDocument{
		Key:       key,
		Body:      string(doc),
		UpdatedAt: time.Now(),
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert check-in document: %w", err)
	}
	return nil
}
