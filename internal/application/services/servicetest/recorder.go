package servicetest

import (
	"sync"

	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
)

// Recorder 记录收到的事件
type Recorder struct {
	mu     sync.Mutex
	events []entities.Event
}

func (r *Recorder) Handle(ev entities.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) Events() []entities.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]entities.Event(nil), r.events...)
}

// OfType 指定类型的事件
func (r *Recorder) OfType(t entities.EventType) []entities.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entities.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (r *Recorder) Count(t entities.EventType) int {
	return len(r.OfType(t))
}
