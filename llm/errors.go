package llm

import (
	"errors"
	"strings"
)

var (
	// ErrNoProviders 在某能力的候选列表为空时返回（凭证缺失或过滤后为空）。
	ErrNoProviders = errors.New("no providers available for rotation")
)

// rotatableSignatures 是限流/容量类失败的特征串。
// 命中任意一条时调用方应静默轮换到下一个候选模型。
var rotatableSignatures = []string{
	"429",
	"413",
	"rate limit",
	"quota",
	"resource_exhausted",
	"request too large",
	"empty output",
}

// toolSignatures 是工具调用格式或模型可用性问题的特征串。
// 执行 Worker 对这类错误同样轮换（换一个模型往往就能通过）。
var toolSignatures = []string{
	"failed to call a function",
	"tool_call",
	"model_not_found",
	"does not exist",
}

// IsRotatable 判断错误是否属于限流/配额/体积类瞬时失败。
// 结构化的 *Error 优先按 Retryable 标记判断，其余错误按特征串匹配。
func IsRotatable(err error) bool {
	if err == nil {
		return false
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Retryable
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range rotatableSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// IsToolIncompatible 判断错误是否属于工具调用格式不兼容或模型不可用。
func IsToolIncompatible(err error) bool {
	if err == nil {
		return false
	}
	var le *Error
	if errors.As(err, &le) {
		switch le.Code {
		case ErrToolValidation, ErrModelNotFound:
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range toolSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// ClassifyHTTPStatus 把上游 HTTP 状态码映射为统一错误码。
func ClassifyHTTPStatus(status int) (ErrorCode, bool) {
	switch {
	case status == 429:
		return ErrRateLimited, true
	case status == 413:
		return ErrPayloadTooLarge, true
	case status == 401 || status == 403:
		return ErrUnauthorized, false
	case status == 404:
		return ErrModelNotFound, false
	case status == 408 || status == 504:
		return ErrUpstreamTimeout, true
	case status >= 500:
		return ErrUpstreamError, true
	default:
		return ErrInvalidRequest, false
	}
}
