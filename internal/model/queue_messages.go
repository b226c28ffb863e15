package model

// CycleCompletedEvent 周期持久化完成后发布的事件
type CycleCompletedEvent struct {
	EventID          string `json:"event_id"` // 消息唯一ID，用于幂等性检查
	CycleID          int64  `json:"cycle_id"`
	Action           string `json:"action"`
	DaysElapsed      int    `json:"days_elapsed"`
	Status           string `json:"status"`
	EmailSent        bool   `json:"email_sent"`
	NewRecord        bool   `json:"new_record"`
	ReminderSent     bool   `json:"reminder_sent"`
	ReminderError    string `json:"reminder_error,omitempty"`
	InboxUnavailable bool   `json:"inbox_unavailable"`
	OccurredAt       string `json:"occurred_at"` // RFC3339
}
