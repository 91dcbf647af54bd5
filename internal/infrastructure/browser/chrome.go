package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/easayliu/alist-photo-relay/internal/application/contracts"
	"github.com/easayliu/alist-photo-relay/pkg/backoff"
	"github.com/easayliu/alist-photo-relay/pkg/logger"
)

// 按键名到 chromedp 键码
var keyMap = map[string]string{
	"Escape":     kb.Escape,
	"End":        kb.End,
	"Home":       kb.Home,
	"PageDown":   kb.PageDown,
	"PageUp":     kb.PageUp,
	"Enter":      kb.Enter,
	"ArrowRight": kb.ArrowRight,
	"ArrowLeft":  kb.ArrowLeft,
	"ArrowDown":  kb.ArrowDown,
}

// ChromeOptions 浏览器启动参数
type ChromeOptions struct {
	ExecPath  string
	Headless  bool
	Timeout   time.Duration // 单次交互超时
	UserAgent string
}

type chromeElement struct {
	node *cdp.Node
}

func (e chromeElement) String() string {
	return fmt.Sprintf("node#%d", e.node.NodeID)
}

// ChromeSession 基于 chromedp 的自动化会话
type ChromeSession struct {
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	timeout     time.Duration

	closeOnce sync.Once
}

var _ contracts.Session = (*ChromeSession)(nil)

// NewChromeSession 启动浏览器并打开一个标签页
func NewChromeSession(ctx context.Context, opts ChromeOptions) (*ChromeSession, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("mute-audio", true),
		chromedp.WindowSize(1366, 900),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	// 浏览器生命周期独立于调用方 ctx
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	}))

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s := &ChromeSession{
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		timeout:     timeout,
	}

	// 空 Run 触发浏览器启动
	if err := s.run(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return s, nil
}

// run 在标签页上执行动作，同时受单次超时和调用方 ctx 约束
func (s *ChromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	if s.tabCtx.Err() != nil {
		return contracts.ErrSessionClosed
	}

	runCtx, cancel := context.WithTimeout(s.tabCtx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}

	switch {
	case s.tabCtx.Err() != nil:
		return fmt.Errorf("%w: %v", contracts.ErrSessionClosed, err)
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("automation timeout after %s: %w", s.timeout, context.DeadlineExceeded)
	}
	return err
}

func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

func (s *ChromeSession) Reload(ctx context.Context) error {
	return s.run(ctx, chromedp.Reload(), chromedp.WaitReady("body", chromedp.ByQuery))
}

func (s *ChromeSession) LocateAll(ctx context.Context, selector string) ([]contracts.Element, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}

	els := make([]contracts.Element, len(nodes))
	for i, n := range nodes {
		els[i] = chromeElement{node: n}
	}
	return els, nil
}

// ReadAttribute 实时读取属性，懒加载会在节点创建后改写 src
func (s *ChromeSession) ReadAttribute(ctx context.Context, el contracts.Element, name string) (string, bool, error) {
	ce, ok := el.(chromeElement)
	if !ok {
		return "", false, fmt.Errorf("foreign element %v", el)
	}

	var attrs []string
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		attrs, err = dom.GetAttributes(ce.node.NodeID).Do(ctx)
		return err
	}))
	if err != nil {
		return "", false, err
	}

	for i := 0; i+1 < len(attrs); i += 2 {
		if attrs[i] == name {
			return attrs[i+1], true, nil
		}
	}
	return "", false, nil
}

func (s *ChromeSession) Click(ctx context.Context, el contracts.Element) error {
	ce, ok := el.(chromeElement)
	if !ok {
		return fmt.Errorf("foreign element %v", el)
	}
	return s.run(ctx, chromedp.MouseClickNode(ce.node))
}

func (s *ChromeSession) PressKey(ctx context.Context, key string) error {
	code, ok := keyMap[key]
	if !ok {
		code = key
	}
	return s.run(ctx, chromedp.KeyEvent(code))
}

func (s *ChromeSession) Wait(ctx context.Context, d time.Duration) error {
	if !backoff.Sleep(ctx, d) {
		return ctx.Err()
	}
	if s.tabCtx.Err() != nil {
		return contracts.ErrSessionClosed
	}
	return nil
}

func (s *ChromeSession) IsAlive(ctx context.Context) bool {
	var state string
	if err := s.run(ctx, chromedp.Evaluate(`document.readyState`, &state)); err != nil {
		return false
	}
	return state != ""
}

// Close 关闭浏览器，可重复调用
func (s *ChromeSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.tabCtx.Err() == nil {
			err = chromedp.Cancel(s.tabCtx)
		}
		s.tabCancel()
		s.allocCancel()
	})
	return err
}
