package checkin

import "DeadManSwitch/internal/model"

// DefaultEscalationThreshold 42 * 2 个周期后升级通知
const DefaultEscalationThreshold = 42 * 2

// Action 单个周期内唯一执行的动作
type Action int

const (
	ActionEscalate      Action = iota // 发送升级邮件
	ActionRecordCheckIn               // 记录打卡
	ActionReset                       // 重置周期
	ActionTick                        // 提醒并计数
)

func (a Action) String() string {
	switch a {
	case ActionEscalate:
		return "escalate"
	case ActionRecordCheckIn:
		return "record_check_in"
	case ActionReset:
		return "reset"
	case ActionTick:
		return "tick"
	default:
		return "unknown"
	}
}

// Decide 按优先级选择动作，规则互斥
func Decide(rec model.CheckInRecord, hasMessage bool, threshold int) Action {
	notCheckedIn := rec.Status == model.StatusNotCheckedIn

	switch {
	case rec.DaysElapsed == threshold && notCheckedIn && !rec.EmailSent:
		return ActionEscalate
	case rec.DaysElapsed < threshold && hasMessage && notCheckedIn:
		return ActionRecordCheckIn
	case rec.DaysElapsed >= threshold:
		return ActionReset
	default:
		return ActionTick
	}
}
