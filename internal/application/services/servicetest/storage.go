package servicetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/easayliu/alist-photo-relay/internal/application/contracts"
	"github.com/easayliu/alist-photo-relay/pkg/httpclient"
)

// Storage 内存版远端存储
type Storage struct {
	mu        sync.Mutex
	connected bool
	folders   map[string]bool
	files     map[string][]byte
	uploadErr error
	ensureErr error

	gate        chan struct{}
	uploads     map[string]int
	inflight    int
	maxInflight int
}

func NewStorage() *Storage {
	return &Storage{
		connected: true,
		folders:   make(map[string]bool),
		files:     make(map[string][]byte),
		uploads:   make(map[string]int),
	}
}

// HoldUploads 之后的 Upload 阻塞到返回的 release 被调用
func (s *Storage) HoldUploads() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// InFlight 正在进行的上传数
func (s *Storage) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight
}

// MaxInFlight 同时进行的上传数峰值
func (s *Storage) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInflight
}

// Uploads 某个路径被上传的次数
func (s *Storage) Uploads(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads[path]
}

func (s *Storage) SetConnected(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = v
}

func (s *Storage) FailUpload(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadErr = err
}

func (s *Storage) FailEnsure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureErr = err
}

func (s *Storage) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Storage) EnsureFolder(ctx context.Context, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensureErr != nil {
		return false, s.ensureErr
	}
	created := !s.folders[path]
	s.folders[path] = true
	return created, nil
}

func (s *Storage) Upload(ctx context.Context, path string, data []byte) (*contracts.UploadResult, error) {
	s.mu.Lock()
	s.inflight++
	s.maxInflight = max(s.maxInflight, s.inflight)
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
	if !s.connected {
		return nil, contracts.ErrStorageNotConnected
	}
	if s.uploadErr != nil {
		return nil, s.uploadErr
	}
	s.files[path] = append([]byte(nil), data...)
	s.uploads[path]++
	return &contracts.UploadResult{Path: path, Size: int64(len(data))}, nil
}

// Files 已上传的文件路径 -> 内容
func (s *Storage) Files() map[string][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]byte, len(s.files))
	for k, v := range s.files {
		out[k] = v
	}
	return out
}

// Fetcher 内存版资源拉取，未登记的地址返回 404
type Fetcher struct {
	mu     sync.Mutex
	bodies map[string][]byte
	errs   map[string]error
	calls  map[string]int
	gates  map[string]chan struct{}
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		bodies: make(map[string][]byte),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
		gates:  make(map[string]chan struct{}),
	}
}

// Hold 对 url 的 Fetch 阻塞到返回的 release 被调用
func (f *Fetcher) Hold(url string) (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[url] = gate
	f.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (f *Fetcher) Serve(url string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[url] = body
}

func (f *Fetcher) Fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
}

func (f *Fetcher) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls[url]++
	gate := f.gates[url]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	body, ok := f.bodies[url]
	if !ok {
		return nil, fmt.Errorf("fetch %s: %w", url, &httpclient.HTTPError{StatusCode: 404})
	}
	return body, nil
}
