package recovery

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/easayliu/alist-photo-relay/internal/application/contracts"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{name: "会话关闭", err: errors.New("Session Closed unexpectedly"), want: CategorySessionCrashed},
		{name: "浏览器断开", err: errors.New("browser DISCONNECTED"), want: CategorySessionCrashed},
		{name: "会话哨兵错误", err: fmt.Errorf("locate items: %w", contracts.ErrSessionClosed), want: CategorySessionCrashed},
		{name: "超时", err: errors.New("navigation Timeout of 30000 ms exceeded"), want: CategorySessionTimeout},
		{name: "context超时", err: fmt.Errorf("wait: %w", context.DeadlineExceeded), want: CategorySessionTimeout},
		{name: "网络错误", err: errors.New("fetch failed"), want: CategoryNetworkError},
		{name: "连接重置", err: errors.New("read tcp: connection reset by peer"), want: CategoryNetworkError},
		{name: "令牌失效", err: errors.New("invalid or expired token: token is expired"), want: CategoryAuthExpired},
		{name: "空间不足", err: errors.New("upload failed: Insufficient Space"), want: CategoryStorageQuotaExceeded},
		{name: "未知错误", err: errors.New("something odd"), want: CategoryUnknown},
		{name: "nil", err: nil, want: CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCategory_IsRecoverable(t *testing.T) {
	tests := []struct {
		category Category
		want     bool
	}{
		{CategorySessionCrashed, true},
		{CategorySessionTimeout, true},
		{CategoryNetworkError, true},
		{CategoryUnknown, true},
		{CategoryAuthExpired, false},
		{CategoryStorageQuotaExceeded, false},
	}

	for _, tt := range tests {
		if got := tt.category.IsRecoverable(); got != tt.want {
			t.Errorf("%s.IsRecoverable() = %v, want %v", tt.category, got, tt.want)
		}
	}
}
