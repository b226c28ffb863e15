package utils

import (
	"fmt"
	"time"
)

var clockLayouts = []string{"15:04:05", "15:04"}

// ParseTime 解析时间字符串（格式：HH:MM:SS 或 HH:MM）并应用到指定日期
func ParseTime(timeStr string, date time.Time) (time.Time, error) {
	if timeStr == "" {
		return date, nil
	}

	var (
		parsedTime time.Time
		err        error
	)
	for _, layout := range clockLayouts {
		if parsedTime, err = time.Parse(layout, timeStr); err == nil {
			break
		}
	}
	if err != nil {
		return date, fmt.Errorf("invalid time of day %q", timeStr)
	}

	return time.Date(
		date.Year(),
		date.Month(),
		date.Day(),
		parsedTime.Hour(),
		parsedTime.Minute(),
		parsedTime.Second(),
		0,
		date.Location(),
	), nil
}

// NextOccurrence 返回 now 之后最近的一个时刻，时刻按 now 所在时区解释
func NextOccurrence(now time.Time, times []string) (time.Time, error) {
	if len(times) == 0 {
		return time.Time{}, fmt.Errorf("no times of day configured")
	}

	var next time.Time
	for _, t := range times {
		candidate, err := ParseTime(t, now)
		if err != nil {
			return time.Time{}, err
		}
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		if next.IsZero() || candidate.Before(next) {
			next = candidate
		}
	}
	return next, nil
}
