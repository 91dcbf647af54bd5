package alist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/easayliu/alist-photo-relay/internal/application/contracts"
	"github.com/easayliu/alist-photo-relay/internal/infrastructure/config"
	"github.com/easayliu/alist-photo-relay/internal/infrastructure/ratelimit"
	"github.com/easayliu/alist-photo-relay/pkg/httpclient"
	"github.com/easayliu/alist-photo-relay/pkg/logger"
)

var (
	// ErrAuthExpired 令牌失效且无法重新登录
	ErrAuthExpired = errors.New("invalid or expired token")
	// ErrInsufficientSpace 目标存储空间不足
	ErrInsufficientSpace = errors.New("insufficient space")
	// ErrObjectNotFound 路径不存在
	ErrObjectNotFound = errors.New("object not found")
)

// Client Alist客户端，实现 contracts.StorageProvider
type Client struct {
	BaseURL  string
	Username string
	Password string

	mu          sync.RWMutex
	token       string
	httpClient  *http.Client
	rateLimiter *ratelimit.Limiter
}

var _ contracts.StorageProvider = (*Client)(nil)

// NewClient 创建新的Alist客户端
func NewClient(cfg config.AlistConfig) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		Username: cfg.Username,
		Password: cfg.Password,
		token:    cfg.Token,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // 上传大文件需要较长时间
		},
		rateLimiter: ratelimit.New(cfg.QPS),
	}
}

// IsConnected 是否配置了可用凭据
func (c *Client) IsConnected() bool {
	return c.Token() != "" || c.canLogin()
}

func (c *Client) canLogin() bool {
	return c.Username != "" && c.Password != ""
}

// Token 当前令牌
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Login 调用/api/auth/login获取token
func (c *Client) Login(ctx context.Context) error {
	if !c.canLogin() {
		return contracts.ErrStorageNotConnected
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit exceeded during login: %w", err)
	}

	opts := httpclient.DefaultOptions().
		WithContext(ctx).
		WithClient(c.httpClient)

	var resp Response
	if err := httpclient.PostJSON(c.BaseURL+"/api/auth/login", LoginRequest{Username: c.Username, Password: c.Password}, &resp, opts); err != nil {
		return fmt.Errorf("failed to login: %w", err)
	}
	if resp.Code != codeSuccess {
		return fmt.Errorf("login failed: code=%d, message=%s", resp.Code, resp.Message)
	}

	var data LoginData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return fmt.Errorf("failed to decode login response: %w", err)
	}
	c.setToken(data.Token)
	logger.Info("Alist login succeeded", "username", c.Username)
	return nil
}

func (c *Client) ensureToken(ctx context.Context) error {
	if c.Token() != "" {
		return nil
	}
	return c.Login(ctx)
}

// withAuth 执行请求，令牌失效时重新登录并重试一次
func (c *Client) withAuth(ctx context.Context, call func(token string) (*Response, error)) (*Response, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}

	resp, err := call(c.Token())
	if err != nil || resp.Code != codeUnauthorized {
		return resp, err
	}

	if !c.canLogin() {
		return nil, fmt.Errorf("%w: %s", ErrAuthExpired, resp.Message)
	}
	logger.Warn("Alist token rejected, logging in again", "message", resp.Message)
	c.setToken("")
	if err := c.Login(ctx); err != nil {
		return nil, fmt.Errorf("%w: re-login failed: %v", ErrAuthExpired, err)
	}

	resp, err = call(c.Token())
	if err == nil && resp.Code == codeUnauthorized {
		return nil, fmt.Errorf("%w: %s", ErrAuthExpired, resp.Message)
	}
	return resp, err
}

// postJSON 发起带认证的JSON请求
func (c *Client) postJSON(ctx context.Context, endpoint string, reqBody any) (*Response, error) {
	return c.withAuth(ctx, func(token string) (*Response, error) {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit exceeded: %w", err)
		}

		opts := httpclient.DefaultOptions().
			WithContext(ctx).
			WithClient(c.httpClient).
			WithHeader("Authorization", token)

		var resp Response
		if err := httpclient.PostJSON(c.BaseURL+endpoint, reqBody, &resp, opts); err != nil {
			return nil, err
		}
		return &resp, nil
	})
}

// GetFileInfo 获取文件信息
func (c *Client) GetFileInfo(ctx context.Context, filePath string) (*FileInfo, error) {
	resp, err := c.postJSON(ctx, "/api/fs/get", FileGetRequest{Path: filePath})
	if err != nil {
		return nil, fmt.Errorf("get file info failed: %w", err)
	}
	if resp.Code != codeSuccess {
		if strings.Contains(strings.ToLower(resp.Message), "not found") {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, filePath)
		}
		return nil, fmt.Errorf("get file info failed: code=%d, message=%s", resp.Code, resp.Message)
	}

	var info FileInfo
	if err := json.Unmarshal(resp.Data, &info); err != nil {
		return nil, fmt.Errorf("failed to decode file info: %w", err)
	}
	return &info, nil
}

// Mkdir 创建目录（Alist 会递归创建父目录）
func (c *Client) Mkdir(ctx context.Context, dirPath string) error {
	resp, err := c.postJSON(ctx, "/api/fs/mkdir", MkdirRequest{Path: dirPath})
	if err != nil {
		return fmt.Errorf("mkdir failed: %w", err)
	}
	if resp.Code != codeSuccess {
		return c.providerError("mkdir", resp)
	}
	return nil
}

// EnsureFolder 确保目录存在
func (c *Client) EnsureFolder(ctx context.Context, dirPath string) (bool, error) {
	dirPath = cleanPath(dirPath)

	info, err := c.GetFileInfo(ctx, dirPath)
	if err == nil {
		if !info.IsDir {
			return false, fmt.Errorf("destination %s exists and is not a directory", dirPath)
		}
		return true, nil
	}
	if !errors.Is(err, ErrObjectNotFound) {
		return false, err
	}

	if err := c.Mkdir(ctx, dirPath); err != nil {
		return false, err
	}
	logger.Info("Alist folder created", "path", dirPath)
	return true, nil
}

// Upload 通过 PUT /api/fs/put 流式上传文件
func (c *Client) Upload(ctx context.Context, filePath string, data []byte) (*contracts.UploadResult, error) {
	filePath = cleanPath(filePath)

	resp, err := c.withAuth(ctx, func(token string) (*Response, error) {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit exceeded: %w", err)
		}

		opts := httpclient.DefaultOptions().
			WithContext(ctx).
			WithClient(c.httpClient).
			WithHeader("Authorization", token).
			WithHeader("File-Path", url.PathEscape(filePath)).
			WithHeader("Content-Type", "application/octet-stream").
			WithHeader("Content-Length", strconv.Itoa(len(data))).
			WithHeader("As-Task", "false")

		body, err := httpclient.Do(http.MethodPut, c.BaseURL+"/api/fs/put", bytes.NewReader(data), opts)
		if err != nil {
			return nil, err
		}

		var resp Response
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to decode upload response: %w", err)
		}
		return &resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s failed: %w", filePath, err)
	}
	if resp.Code != codeSuccess {
		return nil, c.providerError("upload "+filePath, resp)
	}

	return &contracts.UploadResult{Path: filePath, Size: int64(len(data))}, nil
}

func (c *Client) providerError(op string, resp *Response) error {
	msg := strings.ToLower(resp.Message)
	if strings.Contains(msg, "space") || strings.Contains(msg, "quota") || strings.Contains(msg, "capacity") {
		return fmt.Errorf("%s: %w: %s", op, ErrInsufficientSpace, resp.Message)
	}
	return fmt.Errorf("%s failed: code=%d, message=%s", op, resp.Code, resp.Message)
}

func cleanPath(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
