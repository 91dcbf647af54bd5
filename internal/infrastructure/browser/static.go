package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/easayliu/alist-photo-relay/internal/application/contracts"
	"github.com/easayliu/alist-photo-relay/pkg/backoff"
	"github.com/easayliu/alist-photo-relay/pkg/httpclient"
)

// StaticOptions 静态页面会话参数
type StaticOptions struct {
	Timeout   time.Duration
	UserAgent string
	CloseKey  string
}

type staticElement struct {
	sel   *goquery.Selection
	index int
}

func (e staticElement) String() string {
	return fmt.Sprintf("%s#%d", goquery.NodeName(e.sel), e.index)
}

// StaticSession 用 HTTP + goquery 模拟自动化会话，适用于不依赖脚本渲染的页面
//
// Click 跟随元素(或最近的祖先)的 href / data-href 打开详情文档，
// CloseKey 返回列表文档，其余按键不做任何事
type StaticSession struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	closeKey  string

	mu      sync.Mutex
	pageURL *url.URL
	list    *goquery.Document
	detail  *goquery.Document
	closed  bool
}

var _ contracts.Session = (*StaticSession)(nil)

func NewStaticSession(opts StaticOptions) *StaticSession {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	closeKey := opts.CloseKey
	if closeKey == "" {
		closeKey = "Escape"
	}
	return &StaticSession{
		client:    &http.Client{Timeout: timeout},
		userAgent: opts.UserAgent,
		timeout:   timeout,
		closeKey:  closeKey,
	}
}

func (s *StaticSession) fetch(ctx context.Context, target string) (*goquery.Document, error) {
	opts := httpclient.DefaultOptions().
		WithContext(ctx).
		WithTimeout(s.timeout).
		WithClient(s.client).
		WithHeader("Accept", "text/html,application/xhtml+xml")
	if s.userAgent != "" {
		opts.WithHeader("User-Agent", s.userAgent)
	}

	data, err := httpclient.GetBytes(target, opts)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(data))
}

func (s *StaticSession) Navigate(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid page url: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return contracts.ErrSessionClosed
	}
	s.mu.Unlock()

	doc, err := s.fetch(ctx, u.String())
	if err != nil {
		return fmt.Errorf("navigate: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageURL = u
	s.list = doc
	s.detail = nil
	return nil
}

func (s *StaticSession) Reload(ctx context.Context) error {
	s.mu.Lock()
	page := s.pageURL
	s.mu.Unlock()
	if page == nil {
		return errors.New("reload before navigate")
	}
	return s.Navigate(ctx, page.String())
}

// current 详情文档优先
func (s *StaticSession) current() (*goquery.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, contracts.ErrSessionClosed
	}
	if s.detail != nil {
		return s.detail, nil
	}
	if s.list == nil {
		return nil, errors.New("no page loaded")
	}
	return s.list, nil
}

func (s *StaticSession) LocateAll(ctx context.Context, selector string) ([]contracts.Element, error) {
	doc, err := s.current()
	if err != nil {
		return nil, err
	}

	var els []contracts.Element
	doc.Find(selector).Each(func(i int, sel *goquery.Selection) {
		els = append(els, staticElement{sel: sel, index: i})
	})
	return els, nil
}

func (s *StaticSession) ReadAttribute(ctx context.Context, el contracts.Element, name string) (string, bool, error) {
	if s.isClosed() {
		return "", false, contracts.ErrSessionClosed
	}
	se, ok := el.(staticElement)
	if !ok {
		return "", false, fmt.Errorf("foreign element %v", el)
	}
	v, ok := se.sel.Attr(name)
	return v, ok, nil
}

func (s *StaticSession) Click(ctx context.Context, el contracts.Element) error {
	if s.isClosed() {
		return contracts.ErrSessionClosed
	}
	se, ok := el.(staticElement)
	if !ok {
		return fmt.Errorf("foreign element %v", el)
	}

	link := se.sel.Closest("[href], [data-href]")
	href, ok := link.Attr("href")
	if !ok {
		href, ok = link.Attr("data-href")
	}
	if !ok || href == "" {
		return fmt.Errorf("element %s has no link to follow", se)
	}

	s.mu.Lock()
	page := s.pageURL
	s.mu.Unlock()

	ref, err := url.Parse(href)
	if err != nil {
		return fmt.Errorf("invalid link %q: %w", href, err)
	}
	if page != nil {
		ref = page.ResolveReference(ref)
	}

	doc, err := s.fetch(ctx, ref.String())
	if err != nil {
		return fmt.Errorf("open detail: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.detail = doc
	return nil
}

func (s *StaticSession) PressKey(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return contracts.ErrSessionClosed
	}
	if key == s.closeKey {
		s.detail = nil
	}
	return nil
}

func (s *StaticSession) Wait(ctx context.Context, d time.Duration) error {
	if !backoff.Sleep(ctx, d) {
		return ctx.Err()
	}
	return nil
}

func (s *StaticSession) IsAlive(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.list != nil
}

func (s *StaticSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.list = nil
	s.detail = nil
	return nil
}

func (s *StaticSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
