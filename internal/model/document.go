package model

import "time"

// CheckInDocument postgres 存储驱动下的文档行，Body 为原样 JSON
type CheckInDocument struct {
	Key       string    `gorm:"primaryKey;type:varchar(255)" json:"key"`
	Body      string    `gorm:"type:jsonb;not null" json:"body"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

// TableName 指定表名
func (CheckInDocument) TableName() string {
	return "check_in_documents"
}
