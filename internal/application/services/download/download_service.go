package download

import (
	"context"
	"errors"
	"path"
	"time"

	"github.com/easayliu/alist-photo-relay/internal/application/contracts"
	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
	"github.com/easayliu/alist-photo-relay/internal/infrastructure/config"
	"github.com/easayliu/alist-photo-relay/pkg/backoff"
	"github.com/easayliu/alist-photo-relay/pkg/logger"
)

const DefaultMaxAttempts = 5

// Options 下载重试参数
type Options struct {
	MaxAttempts int
	Backoff     backoff.Config
}

// OptionsFromConfig 从配置构造，未设置的字段使用默认值
func OptionsFromConfig(cfg config.DownloadConfig) Options {
	opts := Options{
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     backoff.DefaultConfig(),
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Backoff.Base > 0 {
		opts.Backoff.Base = cfg.Backoff.Base
	}
	if cfg.Backoff.Max > 0 {
		opts.Backoff.Max = cfg.Backoff.Max
	}
	if cfg.Backoff.Jitter > 0 {
		opts.Backoff.Jitter = cfg.Backoff.Jitter
	}
	return opts
}

// Result 单个资源的处理结果，失败也通过返回值表达
type Result struct {
	Success         bool   `json:"success"`
	Cancelled       bool   `json:"cancelled,omitempty"` // 任务停止导致中断，不应记录
	Fingerprint     string `json:"fingerprint"`
	Filename        string `json:"filename"`
	ThumbnailRef    string `json:"thumbnail_ref"`
	DestinationPath string `json:"destination_path"`
	ByteSize        int64  `json:"byte_size"`
	Attempts        int    `json:"attempts"`
	ErrorText       string `json:"error_text,omitempty"`
}

// Record 转换成去重记录，中断的结果返回 nil
func (r Result) Record(taskID string, at time.Time) *entities.DownloadRecord {
	if r.Cancelled {
		return nil
	}
	status := entities.RecordStatusFailed
	if r.Success {
		status = entities.RecordStatusSuccess
	}
	return &entities.DownloadRecord{
		TaskID:          taskID,
		Fingerprint:     r.Fingerprint,
		Filename:        r.Filename,
		ThumbnailRef:    r.ThumbnailRef,
		DestinationPath: r.DestinationPath,
		ByteSize:        r.ByteSize,
		Status:          status,
		ErrorText:       r.ErrorText,
		Timestamp:       at,
	}
}

// Summary 批量处理统计
type Summary struct {
	Attempted int   `json:"attempted"`
	Succeeded int   `json:"succeeded"`
	Failed    int   `json:"failed"`
	Bytes     int64 `json:"bytes"`
}

// Hooks 批量处理回调，index 从0开始
type Hooks struct {
	OnStart  func(index, total int, res entities.ResolvedResource)
	OnResult func(index, total int, result Result)
}

// Service 拉取资源并上传到远端存储
type Service struct {
	storage contracts.StorageProvider
	fetcher contracts.ResourceFetcher
	opts    Options
}

func NewService(storage contracts.StorageProvider, fetcher contracts.ResourceFetcher, opts Options) *Service {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	return &Service{storage: storage, fetcher: fetcher, opts: opts}
}

// DownloadOne 处理单个资源，最多尝试 MaxAttempts 次
//
// 已开始的一次尝试(拉取和上传)不随 ctx 取消，避免远端留下半截文件；取消只在尝试之间生效
func (s *Service) DownloadOne(ctx context.Context, res entities.ResolvedResource, destDir string) Result {
	dest := path.Join("/", destDir, res.Filename)
	result := Result{
		Fingerprint:     res.Fingerprint,
		Filename:        res.Filename,
		ThumbnailRef:    res.ThumbnailRef,
		DestinationPath: dest,
	}

	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}
		result.Attempts = attempt

		uploaded, err := s.transfer(ctx, res.ResourceURL, dest)
		if err == nil {
			result.Success = true
			result.ByteSize = uploaded.Size
			if uploaded.Path != "" {
				result.DestinationPath = uploaded.Path
			}
			result.ErrorText = ""
			return result
		}
		lastErr = err

		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			result.Cancelled = true
			break
		}

		if attempt == s.opts.MaxAttempts {
			break
		}
		delay := s.opts.Backoff.Delay(attempt)
		logger.Debug("Download attempt failed, retrying",
			"fingerprint", res.Fingerprint,
			"attempt", attempt,
			"delay", delay,
			"error", err)
		if !backoff.Sleep(ctx, delay) {
			result.Cancelled = true
			break
		}
	}

	if lastErr != nil {
		result.ErrorText = lastErr.Error()
	} else if result.Cancelled {
		result.ErrorText = context.Canceled.Error()
	}
	if !result.Cancelled {
		logger.Warn("Download failed after retries",
			"fingerprint", res.Fingerprint,
			"attempts", result.Attempts,
			"error", result.ErrorText)
	}
	return result
}

func (s *Service) transfer(ctx context.Context, resourceURL, dest string) (*contracts.UploadResult, error) {
	ctx = context.WithoutCancel(ctx)
	data, err := s.fetcher.Fetch(ctx, resourceURL)
	if err != nil {
		return nil, err
	}
	return s.storage.Upload(ctx, dest, data)
}

// DownloadMany 按顺序逐个处理
//
// 单个资源失败不影响后续资源；ctx 取消后停止处理剩余资源
func (s *Service) DownloadMany(ctx context.Context, resources []entities.ResolvedResource, destDir string, hooks Hooks) (Summary, []Result) {
	var summary Summary
	results := make([]Result, 0, len(resources))
	total := len(resources)

	for i, res := range resources {
		if ctx.Err() != nil {
			break
		}
		if hooks.OnStart != nil {
			hooks.OnStart(i, total, res)
		}

		result := s.DownloadOne(ctx, res, destDir)
		results = append(results, result)
		if result.Cancelled {
			break
		}

		summary.Attempted++
		if result.Success {
			summary.Succeeded++
			summary.Bytes += result.ByteSize
		} else {
			summary.Failed++
		}
		if hooks.OnResult != nil {
			hooks.OnResult(i, total, result)
		}
	}
	return summary, results
}
