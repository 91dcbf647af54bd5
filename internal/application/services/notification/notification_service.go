package notification

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
	"github.com/easayliu/alist-photo-relay/internal/domain/valueobjects"
	"github.com/easayliu/alist-photo-relay/internal/infrastructure/config"
	"github.com/easayliu/alist-photo-relay/internal/infrastructure/telegram"
	"github.com/easayliu/alist-photo-relay/pkg/logger"
)

const defaultQueueSize = 64

// Sender 消息发送端，由 telegram.Client 实现
type Sender interface {
	SendNotification(msg *telegram.NotificationMessage) error
}

// Service 事件通知订阅者
//
// Handle 在任务循环的 goroutine 中被同步调用，所以只做过滤和入队；
// 发送由后台 worker 完成，队列满时丢弃并计数
type Service struct {
	sender Sender
	events map[entities.EventType]bool

	queue     chan *telegram.NotificationMessage
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	dropped   atomic.Int64
}

func NewService(sender Sender, cfg config.TelegramConfig) *Service {
	size := cfg.Queue
	if size <= 0 {
		size = defaultQueueSize
	}
	wanted := make(map[entities.EventType]bool, len(cfg.Events))
	for _, t := range cfg.Events {
		wanted[entities.EventType(t)] = true
	}
	return &Service{
		sender: sender,
		events: wanted,
		queue:  make(chan *telegram.NotificationMessage, size),
	}
}

// Start 启动发送 worker
func (s *Service) Start() {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.worker()
	})
}

func (s *Service) worker() {
	defer s.wg.Done()
	for msg := range s.queue {
		if err := s.sender.SendNotification(msg); err != nil {
			logger.Warn("Failed to deliver notification", "type", msg.Type, "error", err)
		}
	}
}

// Close 停止接收新消息，等待队列发送完毕
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
		s.wg.Wait()
	})
}

// Dropped 因队列满被丢弃的消息数
func (s *Service) Dropped() int64 {
	return s.dropped.Load()
}

// Handle 事件订阅回调
func (s *Service) Handle(ev entities.Event) {
	if !s.events[ev.Type] {
		return
	}
	msg, ok := BuildMessage(ev)
	if !ok {
		return
	}
	s.Notify(msg)
}

// Notify 非阻塞入队
func (s *Service) Notify(msg *telegram.NotificationMessage) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.queue <- msg:
	default:
		s.dropped.Add(1)
		logger.Warn("Notification queue full, dropping message", "type", msg.Type)
	}
}

// BuildMessage 把事件转换成通知，不值得推送的事件返回 false
func BuildMessage(ev entities.Event) (*telegram.NotificationMessage, bool) {
	msg := &telegram.NotificationMessage{
		Type:      string(ev.Type),
		Timestamp: ev.Timestamp,
		Extra:     map[string]any{"task_id": ev.TaskID},
	}

	switch p := ev.Payload.(type) {
	case entities.StartedPayload:
		msg.Title = fmt.Sprintf("任务已启动: %s", p.Name)
		msg.Content = fmt.Sprintf("任务: %s\n页面: %s", ev.TaskID, p.TargetURL)
	case entities.StoppedPayload:
		msg.Title = "任务已停止"
		msg.Content = fmt.Sprintf("任务: %s\n原因: %s", ev.TaskID, p.Reason)
	case entities.RecoveringPayload:
		msg.Title = "任务恢复中"
		msg.Content = fmt.Sprintf("任务: %s\n第 %d/%d 次尝试, %s 后重试\n分类: %s\n错误: %s",
			ev.TaskID, p.Attempt, p.Budget, time.Duration(p.DelayMs)*time.Millisecond, p.Category, p.Error)
	case entities.RecoveredPayload:
		msg.Title = "任务已恢复"
		msg.Content = fmt.Sprintf("任务: %s\n第 %d 次恢复成功", ev.TaskID, p.Attempt)
	case entities.ErrorPayload:
		msg.Title = "任务出错"
		msg.Content = fmt.Sprintf("任务: %s\n分类: %s\n错误: %s", ev.TaskID, p.Category, p.Message)
	case entities.CycleCompletedPayload:
		// 没有新内容也没有失败的轮次不推送
		if p.New == 0 && p.Failed == 0 {
			return nil, false
		}
		msg.Title = fmt.Sprintf("第 %d 轮检查完成", p.Cycle)
		msg.Content = fmt.Sprintf("任务: %s\n发现: %d  新增: %d\n上传成功: %d  失败: %d\n下次检查: %s",
			ev.TaskID, p.Found, p.New, p.Succeeded, p.Failed, p.NextCheckAt.Format("15:04:05"))
	case entities.DownloadCompletedPayload:
		msg.Title = "照片已上传"
		msg.Content = fmt.Sprintf("%s\n%s (%s)", p.Filename, p.Path, valueobjects.NewFileSize(p.Size).Format())
	case entities.DownloadFailedPayload:
		msg.Title = "照片上传失败"
		msg.Content = fmt.Sprintf("%s\n%s", p.Filename, p.Error)
	default:
		return nil, false
	}
	return msg, true
}
