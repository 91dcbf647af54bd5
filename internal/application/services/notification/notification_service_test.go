package notification

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
	"github.com/easayliu/alist-photo-relay/internal/infrastructure/config"
	"github.com/easayliu/alist-photo-relay/internal/infrastructure/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu    sync.Mutex
	msgs  []*telegram.NotificationMessage
	block chan struct{}
	err   error
}

func (f *fakeSender) SendNotification(msg *telegram.NotificationMessage) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return f.err
}

func (f *fakeSender) sent() []*telegram.NotificationMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*telegram.NotificationMessage(nil), f.msgs...)
}

func TestService_FiltersByEventType(t *testing.T) {
	sender := &fakeSender{}
	svc := NewService(sender, config.TelegramConfig{
		Events: []string{string(entities.EventTaskStarted), string(entities.EventCycleCompleted)},
	})
	svc.Start()

	svc.Handle(entities.NewEvent(entities.EventTaskStarted, "t1", entities.StartedPayload{Name: "相册", TargetURL: "https://example.com"}))
	svc.Handle(entities.NewEvent(entities.EventTaskStopped, "t1", entities.StoppedPayload{Reason: "manual"}))
	svc.Handle(entities.NewEvent(entities.EventCycleCompleted, "t1", entities.CycleCompletedPayload{Cycle: 1}))
	svc.Handle(entities.NewEvent(entities.EventCycleCompleted, "t1", entities.CycleCompletedPayload{Cycle: 2, New: 3, Succeeded: 3}))
	svc.Close()

	msgs := sender.sent()
	require.Len(t, msgs, 2)
	assert.Equal(t, "task:started", msgs[0].Type)
	assert.Contains(t, msgs[0].Title, "相册")
	assert.Equal(t, "第 2 轮检查完成", msgs[1].Title)
	assert.Equal(t, "t1", msgs[1].Extra["task_id"])
}

func TestService_DropsWhenQueueFull(t *testing.T) {
	sender := &fakeSender{block: make(chan struct{})}
	svc := NewService(sender, config.TelegramConfig{
		Events: []string{string(entities.EventTaskError)},
		Queue:  1,
	})
	svc.Start()

	ev := entities.NewEvent(entities.EventTaskError, "t1", entities.ErrorPayload{Category: "auth_expired", Message: "boom"})
	done := make(chan struct{})
	go func() {
		// worker 取走第一条后阻塞，第二条占满队列，其余被丢弃
		for i := 0; i < 5; i++ {
			svc.Handle(ev)
			time.Sleep(5 * time.Millisecond)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Handle blocked on a slow sender")
	}
	assert.GreaterOrEqual(t, svc.Dropped(), int64(3))

	close(sender.block)
	svc.Close()
	assert.Len(t, sender.sent(), 5-int(svc.Dropped()))
}

func TestService_SenderErrorsAreSwallowed(t *testing.T) {
	sender := &fakeSender{err: errors.New("bot api down")}
	svc := NewService(sender, config.TelegramConfig{Events: []string{string(entities.EventTaskStopped)}})
	svc.Start()

	svc.Handle(entities.NewEvent(entities.EventTaskStopped, "t1", entities.StoppedPayload{Reason: "error"}))
	svc.Close()
	svc.Handle(entities.NewEvent(entities.EventTaskStopped, "t1", entities.StoppedPayload{Reason: "late"}))

	assert.Len(t, sender.sent(), 1)
}

func TestBuildMessage(t *testing.T) {
	tests := []struct {
		name    string
		event   entities.Event
		wantOK  bool
		content string
	}{
		{
			name:    "恢复中",
			event:   entities.NewEvent(entities.EventTaskRecovering, "t1", entities.RecoveringPayload{Attempt: 2, Budget: 3, Category: "network_error", DelayMs: 2000, Error: "connection reset"}),
			wantOK:  true,
			content: "第 2/3 次尝试, 2s 后重试",
		},
		{
			name:    "上传完成",
			event:   entities.NewEvent(entities.EventDownloadCompleted, "t1", entities.DownloadCompletedPayload{Filename: "a.jpg", Path: "/photos/a.jpg", Size: 3 * 1024 * 1024}),
			wantOK:  true,
			content: "/photos/a.jpg (3.00 MB)",
		},
		{
			name:    "下载失败",
			event:   entities.NewEvent(entities.EventDownloadFailed, "t1", entities.DownloadFailedPayload{Filename: "a.jpg", Error: "http error: status 404"}),
			wantOK:  true,
			content: "status 404",
		},
		{
			name:   "无变化的轮次",
			event:  entities.NewEvent(entities.EventCycleCompleted, "t1", entities.CycleCompletedPayload{Cycle: 5, Found: 10}),
			wantOK: false,
		},
		{
			name:   "日志事件",
			event:  entities.NewEvent(entities.EventTaskLog, "t1", entities.LogPayload{Level: "info", Message: "x"}),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := BuildMessage(tt.event)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Contains(t, msg.Content, tt.content)
			}
		})
	}
}
