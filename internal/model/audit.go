package model

import "time"

// CycleAudit 每次周期执行结果的审计记录，由 worker 从事件队列落库
type CycleAudit struct {
	BaseModel
	EventID          string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"event_id"`
	CycleID          int64     `gorm:"not null;index" json:"cycle_id"`
	Action           string    `gorm:"type:varchar(32);not null;index" json:"action"`
	DaysElapsed      int       `gorm:"not null" json:"days_elapsed"`
	Status           string    `gorm:"type:varchar(16);not null" json:"status"`
	EmailSent        bool      `gorm:"not null" json:"email_sent"`
	NewRecord        bool      `gorm:"not null" json:"new_record"`
	ReminderSent     bool      `gorm:"not null" json:"reminder_sent"`
	ReminderError    string    `gorm:"type:text" json:"reminder_error,omitempty"`
	InboxUnavailable bool      `gorm:"not null" json:"inbox_unavailable"`
	OccurredAt       time.Time `gorm:"type:timestamptz;not null;index" json:"occurred_at"`
}

// TableName 指定表名
func (CycleAudit) TableName() string {
	return "cycle_audits"
}
