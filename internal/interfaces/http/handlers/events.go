package handlers

import (
	"io"
	"time"

	"github.com/easayliu/alist-photo-relay/internal/application/contracts"
	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
	"github.com/easayliu/alist-photo-relay/pkg/logger"
	"github.com/gin-gonic/gin"
)

const (
	defaultStreamBuffer    = 64
	defaultStreamKeepAlive = 15 * time.Second
)

// EventSubscriber 事件订阅能力
type EventSubscriber interface {
	Subscribe(handler contracts.EventHandler) func()
}

// EventHandler SSE事件流处理器
type EventHandler struct {
	subscriber EventSubscriber
	buffer     int
	keepAlive  time.Duration
}

// NewEventHandler 创建事件流处理器
func NewEventHandler(subscriber EventSubscriber) *EventHandler {
	return &EventHandler{
		subscriber: subscriber,
		buffer:     defaultStreamBuffer,
		keepAlive:  defaultStreamKeepAlive,
	}
}

// StreamEvents 以SSE推送任务事件
// @Summary 订阅任务事件
// @Description 以 text/event-stream 推送所有任务事件，事件名为事件类型，数据为JSON；可用 task_id 过滤
// @Tags 事件
// @Produce text/event-stream
// @Param task_id query string false "仅推送该任务的事件"
// @Success 200 {string} string "事件流"
// @Router /events [get]
func (h *EventHandler) StreamEvents(c *gin.Context) {
	taskID := c.Query("task_id")
	events := make(chan entities.Event, h.buffer)

	// 回调在任务循环中同步执行，队列满时丢弃，慢客户端不阻塞任务
	unsubscribe := h.subscriber.Subscribe(func(ev entities.Event) {
		if taskID != "" && ev.TaskID != taskID {
			return
		}
		select {
		case events <- ev:
		default:
			logger.Warn("SSE client too slow, event dropped", "type", ev.Type, "task_id", ev.TaskID)
		}
	})
	defer unsubscribe()

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(200)
	c.Writer.Flush()

	logger.Debug("SSE client connected", "remote", c.ClientIP(), "task_id", taskID)
	defer logger.Debug("SSE client disconnected", "remote", c.ClientIP())

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev := <-events:
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"timestamp": time.Now().UTC().Format(time.RFC3339)})
			return true
		}
	})
}
