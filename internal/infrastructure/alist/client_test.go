package alist

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/easayliu/alist-photo-relay/internal/application/contracts"
	"github.com/easayliu/alist-photo-relay/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAlist 模拟 Alist 服务端的最小实现
type fakeAlist struct {
	mu        sync.Mutex
	validTok  string
	dirs      map[string]bool
	files     map[string][]byte
	logins    int
	putMsg    string
	putCode   int
	expireOne bool
}

func newFakeAlist() *fakeAlist {
	return &fakeAlist{
		validTok: "tok-1",
		dirs:     map[string]bool{"/": true},
		files:    map[string][]byte{},
	}
}

func (f *fakeAlist) reply(w http.ResponseWriter, code int, msg string, data any) {
	json.NewEncoder(w).Encode(map[string]any{"code": code, "message": msg, "data": data})
}

func (f *fakeAlist) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path == "/api/auth/login" {
		var req LoginRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Username != "admin" || req.Password != "pw" {
			f.reply(w, 400, "password is incorrect", nil)
			return
		}
		f.logins++
		f.reply(w, 200, "success", map[string]string{"token": f.validTok})
		return
	}

	if f.expireOne {
		f.expireOne = false
		f.reply(w, 401, "token is expired", nil)
		return
	}
	if r.Header.Get("Authorization") != f.validTok {
		f.reply(w, 401, "token is invalidated", nil)
		return
	}

	switch r.URL.Path {
	case "/api/fs/get":
		var req FileGetRequest
		json.NewDecoder(r.Body).Decode(&req)
		if f.dirs[req.Path] {
			f.reply(w, 200, "success", map[string]any{"name": req.Path, "is_dir": true})
			return
		}
		if _, ok := f.files[req.Path]; ok {
			f.reply(w, 200, "success", map[string]any{"name": req.Path, "is_dir": false})
			return
		}
		f.reply(w, 500, "object not found", nil)
	case "/api/fs/mkdir":
		var req MkdirRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.dirs[req.Path] = true
		f.reply(w, 200, "success", nil)
	case "/api/fs/put":
		if f.putCode != 0 {
			f.reply(w, f.putCode, f.putMsg, nil)
			return
		}
		p, _ := url.PathUnescape(r.Header.Get("File-Path"))
		body, _ := io.ReadAll(r.Body)
		f.files[p] = body
		f.reply(w, 200, "success", nil)
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, fake *fakeAlist, cfg config.AlistConfig) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL
	return NewClient(cfg)
}

func TestClient_IsConnected(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.AlistConfig
		want bool
	}{
		{name: "无凭据", cfg: config.AlistConfig{}, want: false},
		{name: "只有用户名", cfg: config.AlistConfig{Username: "admin"}, want: false},
		{name: "用户名密码", cfg: config.AlistConfig{Username: "admin", Password: "pw"}, want: true},
		{name: "静态token", cfg: config.AlistConfig{Token: "abc"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewClient(tt.cfg).IsConnected())
		})
	}
}

func TestClient_EnsureFolderAndUpload(t *testing.T) {
	fake := newFakeAlist()
	client := newTestClient(t, fake, config.AlistConfig{Username: "admin", Password: "pw"})
	ctx := context.Background()

	ok, err := client.EnsureFolder(ctx, "/photos/family/")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, fake.dirs["/photos/family"])

	// 再次调用不应重复创建
	ok, err = client.EnsureFolder(ctx, "/photos/family")
	require.NoError(t, err)
	assert.True(t, ok)

	res, err := client.Upload(ctx, "/photos/family/a b.jpg", []byte("jpeg-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "/photos/family/a b.jpg", res.Path)
	assert.EqualValues(t, 10, res.Size)
	assert.Equal(t, []byte("jpeg-bytes"), fake.files["/photos/family/a b.jpg"])
	assert.Equal(t, 1, fake.logins)
}

func TestClient_ReloginOnExpiredToken(t *testing.T) {
	fake := newFakeAlist()
	client := newTestClient(t, fake, config.AlistConfig{Username: "admin", Password: "pw", Token: "tok-1"})

	fake.expireOne = true
	_, err := client.Upload(context.Background(), "/a.jpg", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 1, fake.logins)
}

func TestClient_ExpiredTokenWithoutCredentials(t *testing.T) {
	fake := newFakeAlist()
	client := newTestClient(t, fake, config.AlistConfig{Token: "stale"})

	_, err := client.Upload(context.Background(), "/a.jpg", []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuthExpired))
	assert.Contains(t, err.Error(), "expired token")
}

func TestClient_InsufficientSpace(t *testing.T) {
	fake := newFakeAlist()
	fake.putCode = 500
	fake.putMsg = "not enough space left on device"
	client := newTestClient(t, fake, config.AlistConfig{Username: "admin", Password: "pw"})

	_, err := client.Upload(context.Background(), "/a.jpg", []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientSpace))
}

func TestClient_NotConnected(t *testing.T) {
	client := NewClient(config.AlistConfig{BaseURL: "http://127.0.0.1:1"})

	_, err := client.EnsureFolder(context.Background(), "/x")
	assert.True(t, errors.Is(err, contracts.ErrStorageNotConnected))
}
