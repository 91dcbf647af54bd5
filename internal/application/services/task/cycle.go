package task

import (
	"context"
	"fmt"
	"time"

	"github.com/easayliu/alist-photo-relay/internal/application/contracts"
	"github.com/easayliu/alist-photo-relay/internal/application/services/download"
	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
	"github.com/easayliu/alist-photo-relay/pkg/backoff"
	"github.com/easayliu/alist-photo-relay/pkg/logger"
)

// run 任务的独立工作单元
//
// 状态机: running -> (error -> recovering -> running)* -> 退出；恢复后重新进入循环而不是递归调用
func (m *Manager) run(ctx context.Context, st *runState) {
	defer close(st.done)
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("task loop panicked: %v", r)
			logger.Error("Task loop panicked", "task_id", st.taskID(), "panic", r)
			m.failTask(st, err)
		}
	}()

	for {
		err := m.cycleLoop(ctx, st)
		if err == nil || ctx.Err() != nil {
			return
		}

		st.setError(err)
		logger.Warn("Task cycle failed", "task_id", st.taskID(), "error", err)

		if m.attemptRecovery(ctx, st, err) {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		m.failTask(st, err)
		return
	}
}

// cycleLoop 循环执行直到被取消(返回 nil)或出现未处理错误
func (m *Manager) cycleLoop(ctx context.Context, st *runState) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		next, err := m.runCycle(ctx, st)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if !backoff.Sleep(ctx, time.Until(next)) {
			return nil
		}
	}
}

// runCycle 一次完整的 扫描 -> 过滤 -> 解析 -> 下载上传，返回下次检查时间
func (m *Manager) runCycle(ctx context.Context, st *runState) (time.Time, error) {
	cfg := st.cfg
	taskID := cfg.ID
	started := time.Now()
	cycle := st.beginCycle(started)
	session := st.currentSession()
	if session == nil {
		return time.Time{}, contracts.ErrSessionClosed
	}
	if !session.IsAlive(ctx) {
		return time.Time{}, fmt.Errorf("liveness check failed: %w", contracts.ErrSessionClosed)
	}

	m.emit(entities.EventScanStarted, taskID, entities.ScanStartedPayload{Cycle: cycle})

	if cycle > 1 {
		if err := session.Reload(ctx); err != nil {
			return time.Time{}, fmt.Errorf("reload page: %w", err)
		}
	}

	all, err := m.extractor.ExtractFingerprints(ctx, session, cfg, func(current, total int) {
		m.emit(entities.EventScanProgress, taskID, entities.ScanProgressPayload{Cycle: cycle, Current: current, Total: total})
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("discover items: %w", err)
	}

	pending, targets, err := m.filterNew(ctx, taskID, all)
	if err != nil {
		return time.Time{}, err
	}
	m.emit(entities.EventScanCompleted, taskID, entities.ScanCompletedPayload{Cycle: cycle, Found: len(all), New: len(pending)})

	var (
		resolved []entities.ResolvedResource
		summary  download.Summary
	)
	if len(pending) > 0 {
		resolved, err = m.extractor.ExtractPhotoURLs(ctx, session, cfg, targets)
		if err != nil {
			return time.Time{}, fmt.Errorf("resolve resources: %w", err)
		}
		if len(resolved) < len(pending) {
			m.emit(entities.EventTaskLog, taskID, entities.LogPayload{
				Level:   "warn",
				Message: fmt.Sprintf("resolved %d of %d new items", len(resolved), len(pending)),
			})
		}

		summary, _ = m.downloader.DownloadMany(ctx, resolved, cfg.DestinationPath, m.downloadHooks(ctx, taskID))
	}
	if ctx.Err() != nil {
		return time.Time{}, ctx.Err()
	}

	completed := time.Now()
	next := completed.Add(cfg.Interval())
	st.setNextCheck(next)

	logger.Info("Cycle completed",
		"task_id", taskID,
		"cycle", cycle,
		"found", len(all),
		"new", len(pending),
		"downloaded", summary.Attempted,
		"failed", summary.Failed)

	m.emit(entities.EventCycleCompleted, taskID, entities.CycleCompletedPayload{
		Cycle:       cycle,
		Found:       len(all),
		New:         len(pending),
		Resolved:    len(resolved),
		Downloaded:  summary.Attempted,
		Succeeded:   summary.Succeeded,
		Failed:      summary.Failed,
		DurationMs:  completed.Sub(started).Milliseconds(),
		NextCheckAt: next,
	})
	return next, nil
}

// filterNew 去掉已有成功记录的指纹，保持发现顺序
func (m *Manager) filterNew(ctx context.Context, taskID string, all []entities.PhotoFingerprint) ([]entities.PhotoFingerprint, map[string]struct{}, error) {
	pending := make([]entities.PhotoFingerprint, 0)
	targets := make(map[string]struct{})

	for _, fp := range all {
		if _, dup := targets[fp.Fingerprint]; dup {
			continue
		}
		exists, err := m.history.Exists(ctx, taskID, fp.Fingerprint)
		if err != nil {
			return nil, nil, fmt.Errorf("check history: %w", err)
		}
		if exists {
			continue
		}
		targets[fp.Fingerprint] = struct{}{}
		pending = append(pending, fp)
	}
	return pending, targets, nil
}

// downloadHooks 每个资源处理完立即落库并发出事件
func (m *Manager) downloadHooks(ctx context.Context, taskID string) download.Hooks {
	return download.Hooks{
		OnStart: func(index, total int, res entities.ResolvedResource) {
			m.emit(entities.EventDownloadStarted, taskID, entities.DownloadStartedPayload{
				Fingerprint: res.Fingerprint,
				Filename:    res.Filename,
				Index:       index + 1,
				Total:       total,
			})
		},
		OnResult: func(index, total int, result download.Result) {
			if rec := result.Record(taskID, time.Now()); rec != nil {
				// 结果必须落库，不随任务停止而中断
				if err := m.history.Upsert(context.WithoutCancel(ctx), rec); err != nil {
					logger.Error("Failed to persist download record",
						"task_id", taskID, "fingerprint", result.Fingerprint, "error", err)
				}
			}

			if result.Success {
				m.emit(entities.EventDownloadCompleted, taskID, entities.DownloadCompletedPayload{
					Fingerprint: result.Fingerprint,
					Filename:    result.Filename,
					Path:        result.DestinationPath,
					Size:        result.ByteSize,
				})
				return
			}
			m.emit(entities.EventDownloadFailed, taskID, entities.DownloadFailedPayload{
				Fingerprint: result.Fingerprint,
				Filename:    result.Filename,
				Error:       result.ErrorText,
			})
		},
	}
}
