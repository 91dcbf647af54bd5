// Package servicetest 提供应用层测试用的内存实现
package servicetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/easayliu/alist-photo-relay/internal/application/contracts"
	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
	"github.com/easayliu/alist-photo-relay/pkg/backoff"
)

// Item 页面上的一个条目
type Item struct {
	Thumb    string // 缩略图地址
	NoThumb  bool   // 缺少缩略图属性
	Full     string // 详情视图中的原图地址，为空表示没有原图入口
	FailOpen bool   // 打开详情视图失败
}

type element struct {
	kind  string
	index int
}

func (e element) String() string {
	return fmt.Sprintf("%s#%d", e.kind, e.index)
}

// Session 内存版自动化会话，使用默认选择规则
type Session struct {
	mu sync.Mutex

	items   []Item
	visible []int // 第 n 次滚动后可见的条目数，为空表示全部可见
	scrolls int
	detail  int
	closed  bool
	dead    bool

	rules entities.SelectionRules

	locateFailures int
	locateErr      error
	navigateErr    error

	Navigations int
	Reloads     int
	Clicks      int
	Locates     int
}

func NewSession(items ...Item) *Session {
	return &Session{
		items:  items,
		detail: -1,
		rules:  entities.SelectionRules{}.WithDefaults(),
	}
}

// SetItems 替换页面内容，模拟页面更新
func (s *Session) SetItems(items ...Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
}

// SetVisibleSteps 模拟懒加载
func (s *Session) SetVisibleSteps(steps ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = steps
}

// FailLocate 接下来 n 次 LocateAll 返回 err
func (s *Session) FailLocate(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locateFailures = n
	s.locateErr = err
}

// FailNavigate Navigate 返回 err
func (s *Session) FailNavigate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigateErr = err
}

// Crash 模拟浏览器断开
func (s *Session) Crash() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// MarkDead 存活检查失败，其余交互仍然可用
func (s *Session) MarkDead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dead = true
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) Scrolls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scrolls
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return contracts.ErrSessionClosed
	}
	if s.navigateErr != nil {
		return s.navigateErr
	}
	s.Navigations++
	s.scrolls = 0
	s.detail = -1
	return nil
}

func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return contracts.ErrSessionClosed
	}
	s.Reloads++
	s.scrolls = 0
	s.detail = -1
	return nil
}

func (s *Session) visibleCount() int {
	if len(s.visible) == 0 {
		return len(s.items)
	}
	step := s.scrolls
	if step >= len(s.visible) {
		step = len(s.visible) - 1
	}
	return min(s.visible[step], len(s.items))
}

func (s *Session) LocateAll(ctx context.Context, selector string) ([]contracts.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, contracts.ErrSessionClosed
	}
	s.Locates++
	if s.locateFailures > 0 {
		s.locateFailures--
		return nil, s.locateErr
	}

	switch selector {
	case s.rules.ItemSelector:
		n := s.visibleCount()
		els := make([]contracts.Element, n)
		for i := 0; i < n; i++ {
			els[i] = element{kind: "item", index: i}
		}
		return els, nil
	case s.rules.FullSizeSelector:
		if s.detail < 0 || s.items[s.detail].Full == "" {
			return nil, nil
		}
		return []contracts.Element{element{kind: "full", index: s.detail}}, nil
	}
	return nil, nil
}

func (s *Session) ReadAttribute(ctx context.Context, el contracts.Element, name string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, contracts.ErrSessionClosed
	}

	e, ok := el.(element)
	if !ok || e.index >= len(s.items) {
		return "", false, errors.New("stale element")
	}
	item := s.items[e.index]
	switch e.kind {
	case "item":
		if name != s.rules.ThumbnailAttribute || item.NoThumb {
			return "", false, nil
		}
		return item.Thumb, true, nil
	case "full":
		if name != s.rules.FullSizeAttribute {
			return "", false, nil
		}
		return item.Full, true, nil
	}
	return "", false, nil
}

func (s *Session) Click(ctx context.Context, el contracts.Element) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return contracts.ErrSessionClosed
	}
	e, ok := el.(element)
	if !ok || e.index >= len(s.items) {
		return errors.New("stale element")
	}
	s.Clicks++
	if s.items[e.index].FailOpen {
		return errors.New("detail view did not open")
	}
	s.detail = e.index
	return nil
}

func (s *Session) PressKey(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return contracts.ErrSessionClosed
	}
	switch key {
	case s.rules.ScrollKey:
		s.scrolls++
	case s.rules.CloseKey:
		s.detail = -1
	}
	return nil
}

func (s *Session) Wait(ctx context.Context, d time.Duration) error {
	if !backoff.Sleep(ctx, d) {
		return ctx.Err()
	}
	return nil
}

func (s *Session) IsAlive(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && !s.dead
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// SessionFactory 依次返回预设的会话，用完后复用最后一个模板的页面内容新建会话
type SessionFactory struct {
	mu       sync.Mutex
	sessions []*Session
	opened   []*Session
	err      error
	template func() *Session
	gate     chan struct{}
	waiting  int
}

func NewSessionFactory(template func() *Session) *SessionFactory {
	return &SessionFactory{template: template}
}

// Queue 预置下一次 Open 返回的会话
func (f *SessionFactory) Queue(sessions ...*Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, sessions...)
}

// FailOpen 之后的 Open 全部返回 err，传 nil 恢复
func (f *SessionFactory) FailOpen(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// HoldOpen 之后的 Open 阻塞到返回的 release 被调用，不响应 ctx
func (f *SessionFactory) HoldOpen() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// Waiting 阻塞在 HoldOpen 上的 Open 调用数
func (f *SessionFactory) Waiting() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waiting
}

func (f *SessionFactory) Open(ctx context.Context, cfg *entities.TaskConfig) (contracts.Session, error) {
	f.mu.Lock()
	gate := f.gate
	if gate != nil {
		f.waiting++
		f.mu.Unlock()
		<-gate
		f.mu.Lock()
		f.waiting--
	}
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	var s *Session
	if len(f.sessions) > 0 {
		s = f.sessions[0]
		f.sessions = f.sessions[1:]
	} else {
		s = f.template()
	}
	f.opened = append(f.opened, s)
	return s, nil
}

// Opened 已创建的会话
func (f *SessionFactory) Opened() []*Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Session(nil), f.opened...)
}
