package download

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/easayliu/alist-photo-relay/internal/application/contracts"
	"github.com/easayliu/alist-photo-relay/internal/infrastructure/config"
	"github.com/easayliu/alist-photo-relay/internal/infrastructure/ratelimit"
	"github.com/easayliu/alist-photo-relay/pkg/httpclient"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// HTTPFetcher 通过 HTTP 拉取资源
type HTTPFetcher struct {
	client    *http.Client
	limiter   *ratelimit.Limiter
	userAgent string
	timeout   time.Duration
}

var _ contracts.ResourceFetcher = (*HTTPFetcher)(nil)

func NewHTTPFetcher(cfg config.DownloadConfig) *HTTPFetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		limiter:   ratelimit.New(cfg.QPS),
		userAgent: ua,
		timeout:   timeout,
	}
}

// Fetch 非2xx响应返回包装后的 *httpclient.HTTPError
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	opts := httpclient.DefaultOptions().
		WithContext(ctx).
		WithTimeout(f.timeout).
		WithClient(f.client).
		WithHeader("User-Agent", f.userAgent).
		WithHeader("Accept", "image/avif,image/webp,image/*,*/*;q=0.8")

	data, err := httpclient.GetBytes(url, opts)
	if err != nil {
		return nil, fmt.Errorf("fetch resource: %w", err)
	}
	return data, nil
}
