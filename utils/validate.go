package utils

import (
	"regexp"
	"strings"
)

var mainlandMobile = regexp.MustCompile(`^1[3-9]\d{9}$`)

func ValidatePhone(phone string) bool {
	return mainlandMobile.MatchString(phone)
}

// NormalizePhone 去掉空白与 +86/86 前缀，结果不是大陆手机号时 ok 为 false
func NormalizePhone(phone string) (normalized string, ok bool) {
	phone = strings.Join(strings.Fields(phone), "")
	phone = strings.ReplaceAll(phone, "-", "")

	switch {
	case strings.HasPrefix(phone, "+86"):
		phone = phone[3:]
	case len(phone) == 13 && strings.HasPrefix(phone, "86"):
		phone = phone[2:]
	}

	return phone, ValidatePhone(phone)
}
