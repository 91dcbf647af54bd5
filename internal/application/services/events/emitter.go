package events

import (
	"fmt"
	"sync"

	"github.com/easayliu/alist-photo-relay/internal/application/contracts"
	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
	"github.com/easayliu/alist-photo-relay/pkg/logger"
)

// Emitter 进程内事件分发
//
// Emit 同步调用当前所有订阅者；订阅者 panic 会被记录并吞掉。
// 订阅/取消订阅可以与 Emit 并发进行，迟到的订阅者看不到之前的事件。
type Emitter struct {
	mu          sync.RWMutex
	nextID      uint64
	subscribers map[uint64]contracts.EventHandler
	order       []uint64
}

func NewEmitter() *Emitter {
	return &Emitter{
		subscribers: make(map[uint64]contracts.EventHandler),
	}
}

// Subscribe 注册订阅者，返回的函数用于取消订阅(可重复调用)
func (e *Emitter) Subscribe(handler contracts.EventHandler) func() {
	if handler == nil {
		return func() {}
	}

	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.subscribers[id] = handler
	e.order = append(e.order, id)
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { e.remove(id) })
	}
}

func (e *Emitter) remove(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.subscribers, id)
	for i, v := range e.order {
		if v == id {
			e.order = append(e.order[:i:i], e.order[i+1:]...)
			break
		}
	}
}

// Count 当前订阅者数量
func (e *Emitter) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subscribers)
}

// Emit 按注册顺序调用订阅者
func (e *Emitter) Emit(event entities.Event) {
	e.mu.RLock()
	handlers := make([]contracts.EventHandler, 0, len(e.order))
	for _, id := range e.order {
		handlers = append(handlers, e.subscribers[id])
	}
	e.mu.RUnlock()

	for _, h := range handlers {
		e.dispatch(h, event)
	}
}

func (e *Emitter) dispatch(h contracts.EventHandler, event entities.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Event subscriber panicked",
				"type", event.Type,
				"task_id", event.TaskID,
				"panic", fmt.Sprint(r))
		}
	}()
	h(event)
}
