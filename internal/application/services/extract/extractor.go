package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/easayliu/alist-photo-relay/internal/application/contracts"
	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
	"github.com/easayliu/alist-photo-relay/internal/infrastructure/config"
	"github.com/easayliu/alist-photo-relay/pkg/fingerprint"
	"github.com/easayliu/alist-photo-relay/pkg/logger"
)

// ErrFullSizeNotFound 详情视图中没有找到原图入口
var ErrFullSizeNotFound = errors.New("full size element not found")

// Options 提取参数
type Options struct {
	ScrollWait        time.Duration // 每次触发懒加载后的等待
	MaxScrollAttempts int           // 懒加载尝试上限
	StableRounds      int           // 连续多少次数量不变视为加载完毕
	SettleDelay       time.Duration // 打开详情视图后的等待
	ProgressEvery     int           // 每处理多少条上报一次进度
}

// DefaultOptions 默认提取参数
func DefaultOptions() Options {
	return Options{
		ScrollWait:        1500 * time.Millisecond,
		MaxScrollAttempts: 50,
		StableRounds:      3,
		SettleDelay:       time.Second,
		ProgressEvery:     20,
	}
}

// OptionsFromConfig 从配置构造，未设置的字段使用默认值
func OptionsFromConfig(cfg config.ExtractionConfig) Options {
	opts := DefaultOptions()
	if cfg.ScrollWait > 0 {
		opts.ScrollWait = cfg.ScrollWait
	}
	if cfg.MaxScrollAttempts > 0 {
		opts.MaxScrollAttempts = cfg.MaxScrollAttempts
	}
	if cfg.StableRounds > 0 {
		opts.StableRounds = cfg.StableRounds
	}
	if cfg.SettleDelay > 0 {
		opts.SettleDelay = cfg.SettleDelay
	}
	if cfg.ProgressEvery > 0 {
		opts.ProgressEvery = cfg.ProgressEvery
	}
	return opts
}

// ProgressFunc 发现阶段的进度回调
type ProgressFunc func(current, total int)

// Extractor 把页面转成指纹列表，并按需解析原图地址
type Extractor struct {
	opts Options
}

func NewExtractor(opts Options) *Extractor {
	return &Extractor{opts: opts}
}

// ExtractFingerprints 发现阶段
//
// 反复触发懒加载直到条目数连续 StableRounds 次不再增长，然后按出现顺序为每个条目生成指纹。
// 缩略图缺失或读取失败时使用回退指纹，保证返回完整且按序编号的列表。
func (x *Extractor) ExtractFingerprints(ctx context.Context, s contracts.Session, task *entities.TaskConfig, progress ProgressFunc) ([]entities.PhotoFingerprint, error) {
	rules := task.Automation.Rules.WithDefaults()

	items, err := x.loadAll(ctx, s, task.ID, rules)
	if err != nil {
		return nil, err
	}

	total := len(items)
	result := make([]entities.PhotoFingerprint, 0, total)
	for i, el := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ref, ok, err := s.ReadAttribute(ctx, el, rules.ThumbnailAttribute)
		if err != nil && isSessionFatal(ctx, err) {
			return nil, fmt.Errorf("read thumbnail: %w", err)
		}

		var fp string
		if err != nil || !ok || ref == "" {
			fp = fingerprint.Fallback(i)
			logger.Warn("Thumbnail reference unavailable, using fallback fingerprint",
				"task_id", task.ID, "ordinal", i, "fingerprint", fp, "error", err)
		} else {
			var fellBack bool
			fp, fellBack = fingerprint.DeriveOrFallback(ref, i)
			if fellBack {
				logger.Warn("Fingerprint derivation failed, using fallback",
					"task_id", task.ID, "ordinal", i, "ref", ref)
			}
		}

		result = append(result, entities.PhotoFingerprint{
			Ordinal:      i,
			Fingerprint:  fp,
			ThumbnailRef: ref,
		})

		done := i + 1
		if progress != nil && (done == total || (x.opts.ProgressEvery > 0 && done%x.opts.ProgressEvery == 0)) {
			progress(done, total)
		}
	}

	logger.Debug("Discovery pass finished", "task_id", task.ID, "items", total)
	return result, nil
}

// loadAll 触发懒加载直到条目数稳定，返回最后一次定位到的元素
func (x *Extractor) loadAll(ctx context.Context, s contracts.Session, taskID string, rules entities.SelectionRules) ([]contracts.Element, error) {
	var (
		items  []contracts.Element
		prev   = -1
		stable = 0
	)

	for attempt := 1; ; attempt++ {
		els, err := s.LocateAll(ctx, rules.ItemSelector)
		if err != nil {
			return nil, fmt.Errorf("locate items: %w", err)
		}
		items = els

		if len(els) == prev {
			stable++
			if stable >= x.opts.StableRounds {
				return items, nil
			}
		} else {
			stable = 0
			prev = len(els)
		}

		if attempt >= x.opts.MaxScrollAttempts {
			logger.Warn("Lazy loading did not settle before attempt ceiling",
				"task_id", taskID, "attempts", attempt, "items", len(items))
			return items, nil
		}

		if err := s.PressKey(ctx, rules.ScrollKey); err != nil {
			return nil, fmt.Errorf("trigger lazy loading: %w", err)
		}
		if err := s.Wait(ctx, x.opts.ScrollWait); err != nil {
			return nil, err
		}
	}
}

// ExtractPhotoURLs 解析阶段，只处理 targets 中的指纹
//
// 单个条目解析失败只记录日志并跳过，返回结果可能少于 targets。
// 会话失效或 ctx 取消时直接返回错误。
func (x *Extractor) ExtractPhotoURLs(ctx context.Context, s contracts.Session, task *entities.TaskConfig, targets map[string]struct{}) ([]entities.ResolvedResource, error) {
	if len(targets) == 0 {
		return nil, nil
	}
	rules := task.Automation.Rules.WithDefaults()

	items, err := s.LocateAll(ctx, rules.ItemSelector)
	if err != nil {
		return nil, fmt.Errorf("locate items: %w", err)
	}

	resolved := make([]entities.ResolvedResource, 0, len(targets))
	visited := make(map[string]bool, len(targets))

	for i, el := range items {
		if len(visited) == len(targets) {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ref, ok, err := s.ReadAttribute(ctx, el, rules.ThumbnailAttribute)
		if err != nil {
			if isSessionFatal(ctx, err) {
				return nil, fmt.Errorf("read thumbnail: %w", err)
			}
			continue
		}
		if !ok {
			continue
		}
		fp, err := fingerprint.Derive(ref)
		if err != nil {
			continue
		}
		if _, wanted := targets[fp]; !wanted || visited[fp] {
			continue
		}
		visited[fp] = true

		item := entities.PhotoFingerprint{Ordinal: i, Fingerprint: fp, ThumbnailRef: ref}
		res, err := x.resolveOne(ctx, s, task, rules, el, item)
		if err != nil {
			if isSessionFatal(ctx, err) {
				return nil, err
			}
			logger.Warn("Failed to resolve full size resource, skipping",
				"task_id", task.ID, "fingerprint", fp, "error", err)
			continue
		}
		resolved = append(resolved, *res)
	}

	if len(resolved) < len(targets) {
		logger.Info("Resolution pass was partial",
			"task_id", task.ID, "targets", len(targets), "resolved", len(resolved))
	}
	return resolved, nil
}

// resolveOne 打开详情视图读取原图地址，结束后尽量关闭详情视图
func (x *Extractor) resolveOne(ctx context.Context, s contracts.Session, task *entities.TaskConfig, rules entities.SelectionRules, el contracts.Element, item entities.PhotoFingerprint) (*entities.ResolvedResource, error) {
	if err := s.Click(ctx, el); err != nil {
		return nil, fmt.Errorf("open detail view: %w", err)
	}
	defer func() {
		if err := s.PressKey(ctx, rules.CloseKey); err != nil {
			logger.Debug("Failed to close detail view", "task_id", task.ID, "error", err)
		}
	}()

	if err := s.Wait(ctx, x.opts.SettleDelay); err != nil {
		return nil, err
	}

	links, err := s.LocateAll(ctx, rules.FullSizeSelector)
	if err != nil {
		return nil, fmt.Errorf("locate full size element: %w", err)
	}
	if len(links) == 0 {
		return nil, ErrFullSizeNotFound
	}

	ref, ok, err := s.ReadAttribute(ctx, links[0], rules.FullSizeAttribute)
	if err != nil {
		return nil, fmt.Errorf("read full size reference: %w", err)
	}
	if !ok || ref == "" {
		return nil, fmt.Errorf("%w: attribute %q missing", ErrFullSizeNotFound, rules.FullSizeAttribute)
	}

	resourceURL, err := fingerprint.NormalizeURL(ref, task.TargetURL)
	if err != nil {
		return nil, err
	}

	return &entities.ResolvedResource{
		PhotoFingerprint: item,
		ResourceURL:      resourceURL,
		Filename:         fingerprint.Filename(resourceURL),
	}, nil
}

// isSessionFatal 会话失效或任务被取消，不能再按单条失败处理
func isSessionFatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, contracts.ErrSessionClosed) ||
		errors.Is(err, context.Canceled)
}
