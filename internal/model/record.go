package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RecordSource 记录的来源标记，写入后不再变化
const RecordSource = "deadmanswitch"

// TemplateDaysElapsed 新周期开始时的天数
const TemplateDaysElapsed = 1

// CheckInStatus 打卡状态，两值枚举
type CheckInStatus int

const (
	StatusNotCheckedIn CheckInStatus = iota // 未打卡
	StatusCheckedIn                         // 已打卡
)

// 仅在存储边界使用的字符串取值
const (
	statusNotCheckedInText = "not checked in"
	statusCheckedInText    = "checked in"
	emailSentYes           = "yes"
	emailSentNo            = "no"
)

func (s CheckInStatus) String() string {
	if s == StatusCheckedIn {
		return statusCheckedInText
	}
	return statusNotCheckedInText
}

func (s CheckInStatus) MarshalText() ([]byte, error) {
	switch s {
	case StatusCheckedIn, StatusNotCheckedIn:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("invalid check-in status %d", int(s))
	}
}

func (s *CheckInStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case statusCheckedInText:
		*s = StatusCheckedIn
	case statusNotCheckedInText:
		*s = StatusNotCheckedIn
	default:
		return fmt.Errorf("invalid check-in status %q", string(text))
	}
	return nil
}

// CheckInRecord 持久化的打卡记录，全局只有一份
type CheckInRecord struct {
	Source      string
	LastMessage string
	Status      CheckInStatus
	EmailSent   bool
	LastChecked time.Time
	DaysElapsed int
}

// NewTemplate 新周期的模板记录
func NewTemplate(now time.Time) CheckInRecord {
	return CheckInRecord{
		Source:      RecordSource,
		LastMessage: "",
		Status:      StatusNotCheckedIn,
		EmailSent:   false,
		LastChecked: now,
		DaysElapsed: TemplateDaysElapsed,
	}
}

// recordDocument 存储格式，字段名与取值保持与历史文档一致
type recordDocument struct {
	Source      string        `json:"source"`
	LastMessage string        `json:"lastMessage"`
	Status      CheckInStatus `json:"status"`
	EmailSent   string        `json:"emailSent"`
	LastChecked string        `json:"lastChecked"`
	DaysElapsed int           `json:"noOfDaysElapsed"`
}

func (r CheckInRecord) MarshalJSON() ([]byte, error) {
	doc := recordDocument{
		Source:      r.Source,
		LastMessage: r.LastMessage,
		Status:      r.Status,
		EmailSent:   emailSentNo,
		LastChecked: r.LastChecked.Format(time.RFC3339Nano),
		DaysElapsed: r.DaysElapsed,
	}
	if r.EmailSent {
		doc.EmailSent = emailSentYes
	}
	return json.Marshal(doc)
}

func (r *CheckInRecord) UnmarshalJSON(data []byte) error {
	var doc recordDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	var sent bool
	switch doc.EmailSent {
	case emailSentYes:
		sent = true
	case emailSentNo:
		sent = false
	default:
		return fmt.Errorf("invalid emailSent value %q", doc.EmailSent)
	}

	checked, err := ParseTimestamp(doc.LastChecked)
	if err != nil {
		return err
	}

	if doc.DaysElapsed < TemplateDaysElapsed {
		return fmt.Errorf("invalid noOfDaysElapsed %d", doc.DaysElapsed)
	}

	*r = CheckInRecord{
		Source:      doc.Source,
		LastMessage: doc.LastMessage,
		Status:      doc.Status,
		EmailSent:   sent,
		LastChecked: checked,
		DaysElapsed: doc.DaysElapsed,
	}
	return nil
}

// 旧文档中的时间没有时区信息，按 UTC 解释
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp 解析 ISO-8601 时间戳，兼容无时区格式
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty lastChecked timestamp")
	}

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}

	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid lastChecked timestamp %q", value)
}

// EncodeRecord 序列化为存储文档，4 空格缩进
func EncodeRecord(r CheckInRecord) ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "    "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeRecord 解析存储文档
func DecodeRecord(doc []byte) (CheckInRecord, error) {
	var r CheckInRecord
	if err := json.Unmarshal(doc, &r); err != nil {
		return CheckInRecord{}, err
	}
	return r, nil
}
