package task

import (
	"context"
	"fmt"
	"time"

	"github.com/easayliu/alist-photo-relay/internal/application/services/recovery"
	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
	"github.com/easayliu/alist-photo-relay/pkg/backoff"
	"github.com/easayliu/alist-photo-relay/pkg/logger"
)

// attemptRecovery 尝试通过重建会话恢复任务
//
// 不可恢复的分类或预算用完时直接返回 false；恢复过程中的失败记入历史并返回 false，不向外抛出
func (m *Manager) attemptRecovery(ctx context.Context, st *runState, cause error) bool {
	taskID := st.taskID()
	category := recovery.Classify(cause)

	if !category.IsRecoverable() {
		logger.Error("Task error is not recoverable", "task_id", taskID, "category", category, "error", cause)
		return false
	}

	attempt, ok := st.beginRecovery()
	if !ok {
		logger.Error("Retry budget exhausted", "task_id", taskID, "retries", attempt, "error", cause)
		return false
	}

	delay := m.opts.RecoveryBackoff.Delay(attempt)
	logger.Warn("Recovering task",
		"task_id", taskID,
		"attempt", attempt,
		"budget", m.opts.RetryBudget,
		"category", category,
		"delay", delay)
	m.emit(entities.EventTaskRecovering, taskID, entities.RecoveringPayload{
		Attempt:  attempt,
		Budget:   st.retryBudget,
		Category: category.String(),
		DelayMs:  delay.Milliseconds(),
		Error:    cause.Error(),
	})

	if !backoff.Sleep(ctx, delay) {
		return false
	}

	entry := entities.RecoveryAttempt{
		Attempt:  attempt,
		At:       time.Now(),
		Category: category.String(),
		Error:    cause.Error(),
	}

	// 先丢弃旧会话再重建
	if old := st.swapSession(nil); old != nil {
		if err := old.Close(); err != nil {
			logger.Debug("Failed to close broken session", "task_id", taskID, "error", err)
		}
	}

	session, err := m.openSession(ctx, st.cfg)
	if err != nil {
		entry.Error = fmt.Sprintf("%s; recovery failed: %v", cause.Error(), err)
		st.recordRecovery(entry)
		logger.Error("Recovery attempt failed", "task_id", taskID, "attempt", attempt, "error", err)
		return false
	}
	if ctx.Err() != nil {
		// Stop 已经开始，新会话不再使用
		if err := session.Close(); err != nil {
			logger.Debug("Failed to close session opened during stop", "task_id", taskID, "error", err)
		}
		return false
	}

	st.swapSession(session)
	entry.Success = true
	st.recordRecovery(entry)

	logger.Info("Task recovered", "task_id", taskID, "attempt", attempt)
	m.emit(entities.EventTaskRecovered, taskID, entities.RecoveredPayload{Attempt: attempt})
	return true
}

// failTask 终止任务: 保留错误快照，发出 error 和 stopped 事件
func (m *Manager) failTask(st *runState, cause error) {
	taskID := st.taskID()
	category := recovery.Classify(cause)

	st.setTerminal(cause)
	logger.Error("Task terminated", "task_id", taskID, "category", category, "error", cause)

	m.emit(entities.EventTaskError, taskID, entities.ErrorPayload{
		Category: category.String(),
		Message:  cause.Error(),
		Fatal:    true,
	})
	// 在循环内调用，之后不再使用会话
	m.finalize(st, StopReasonError, cause, false, true)
}
