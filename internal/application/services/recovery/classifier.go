package recovery

import (
	"context"
	"errors"
	"strings"

	"github.com/easayliu/alist-photo-relay/internal/application/contracts"
)

// Category 错误分类
type Category string

const (
	CategorySessionCrashed       Category = "session_crashed"
	CategorySessionTimeout       Category = "session_timeout"
	CategoryNetworkError         Category = "network_error"
	CategoryAuthExpired          Category = "auth_expired"
	CategoryStorageQuotaExceeded Category = "storage_quota_exceeded"
	CategoryUnknown              Category = "unknown"
)

// 按顺序匹配，先命中者生效
var rules = []struct {
	category Category
	patterns []string
}{
	{CategorySessionCrashed, []string{
		"session closed", "target closed", "browser closed", "browser has been closed",
		"disconnected", "websocket: close", "invalid context",
	}},
	{CategorySessionTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{CategoryNetworkError, []string{
		"fetch failed", "network", "connection reset", "connection refused",
		"no such host", "broken pipe", "unexpected eof",
	}},
	{CategoryAuthExpired, []string{
		"invalid token", "expired token", "token expired", "token is expired", "token is invalid",
	}},
	{CategoryStorageQuotaExceeded, []string{"insufficient space", "quota", "no space left"}},
}

// Classify 根据错误信息归类
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}
	if errors.Is(err, contracts.ErrSessionClosed) {
		return CategorySessionCrashed
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategorySessionTimeout
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range rules {
		for _, p := range rule.patterns {
			if strings.Contains(msg, p) {
				return rule.category
			}
		}
	}
	return CategoryUnknown
}

// IsRecoverable 可以通过重建会话重试的分类
//
// 凭据失效和空间不足需要人工处理，重试无意义
func (c Category) IsRecoverable() bool {
	switch c {
	case CategorySessionCrashed, CategorySessionTimeout, CategoryNetworkError, CategoryUnknown:
		return true
	default:
		return false
	}
}

func (c Category) String() string {
	return string(c)
}
