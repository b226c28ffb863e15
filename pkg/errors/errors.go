package errors

import (
	stderrors "errors"
	"fmt"
)

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// 配置相关错误。
var (
	ConfigInvalid = Definition{Code: "CONFIG_INVALID", Message: "Configuration invalid"}
)

// 状态存储相关错误。
var (
	RecordNotFound = Definition{Code: "RECORD_NOT_FOUND", Message: "Check-in record not found"}
	RecordCorrupt  = Definition{Code: "RECORD_CORRUPT", Message: "Check-in record corrupt"}
	StoreFailed    = Definition{Code: "STORE_FAILED", Message: "State store operation failed"}
)

// 打卡周期错误。
var (
	CycleInProgress  = Definition{Code: "CYCLE_IN_PROGRESS", Message: "Another check-in cycle is in progress"}
	EscalationFailed = Definition{Code: "ESCALATION_FAILED", Message: "Escalation notification failed"}
)

// 通知渠道错误。
var (
	SignNameRequired     = Definition{Code: "SMS_SIGN_NAME_REQUIRED", Message: "SMS sign name required"}
	TemplateCodeRequired = Definition{Code: "SMS_TEMPLATE_CODE_REQUIRED", Message: "SMS template code required"}
	RecipientsRequired   = Definition{Code: "RECIPIENTS_REQUIRED", Message: "At least one recipient required"}
)

// 接口层错误。
var (
	Unauthorized    = Definition{Code: "UNAUTHORIZED", Message: "Unauthorized"}
	InvalidRequest  = Definition{Code: "INVALID_REQUEST", Message: "Invalid request"}
	TooManyRequests = Definition{Code: "TOO_MANY_REQUESTS", Message: "Too many requests"}
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	ConfigInvalid.Code:        ConfigInvalid,
	RecordNotFound.Code:       RecordNotFound,
	RecordCorrupt.Code:        RecordCorrupt,
	StoreFailed.Code:          StoreFailed,
	CycleInProgress.Code:      CycleInProgress,
	EscalationFailed.Code:     EscalationFailed,
	SignNameRequired.Code:     SignNameRequired,
	TemplateCodeRequired.Code: TemplateCodeRequired,
	RecipientsRequired.Code:   RecipientsRequired,
	Unauthorized.Code:         Unauthorized,
	InvalidRequest.Code:       InvalidRequest,
	TooManyRequests.Code:      TooManyRequests,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}

// Wrap 在保留错误码的同时附带底层原因，errors.Is 对 Definition 与 cause 均成立
func Wrap(def Definition, cause error) error {
	return &codedError{def: def, cause: cause}
}

type codedError struct {
	def   Definition
	cause error
}

func (e *codedError) Error() string {
	if e.cause == nil {
		return e.def.Message
	}
	return fmt.Sprintf("%s: %v", e.def.Message, e.cause)
}

func (e *codedError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.def}
	}
	return []error{e.def, e.cause}
}

// As 在错误链中查找 Definition
func As(err error) (Definition, bool) {
	var def Definition
	if stderrors.As(err, &def) {
		return def, true
	}
	return Definition{}, false
}

// SkipMessageError 消费者明确放弃的消息，不需要重新入队
type SkipMessageError struct {
	Reason string
}

func (e *SkipMessageError) Error() string {
	return e.Reason
}
