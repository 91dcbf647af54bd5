package task

import (
	"context"
	"sync"
	"time"

	"github.com/easayliu/alist-photo-relay/internal/application/contracts"
	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
)

// runState 单次运行的内存状态，由 Manager 独占
//
// session 只由该任务的循环和恢复流程使用；循环退出后由 finalize 关闭。
type runState struct {
	cfg *entities.TaskConfig

	mu          sync.RWMutex
	ready       bool // Start 完成前只是占位
	stopping    bool
	status      entities.TaskStatus
	cycle       int
	startedAt   time.Time
	lastCheckAt time.Time
	nextCheckAt time.Time
	lastError   string
	retryCount  int
	retryBudget int
	history     []entities.RecoveryAttempt
	session     contracts.Session

	cancel   context.CancelFunc
	done     chan struct{}
	finalize sync.Once
}

func newRunState(budget int) *runState {
	return &runState{
		status:      entities.TaskStatusIdle,
		retryBudget: budget,
		done:        make(chan struct{}),
	}
}

func (s *runState) taskID() string {
	return s.cfg.ID
}

func (s *runState) currentSession() contracts.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// swapSession 替换会话并返回旧会话
func (s *runState) swapSession(session contracts.Session) contracts.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.session
	s.session = session
	return old
}

func (s *runState) beginCycle(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycle++
	s.lastCheckAt = now
	s.status = entities.TaskStatusRunning
	return s.cycle
}

func (s *runState) setNextCheck(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCheckAt = t
}

func (s *runState) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = entities.TaskStatusError
	s.lastError = err.Error()
}

func (s *runState) setTerminal(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = entities.TaskStatusErrorTerminal
	s.lastError = err.Error()
}

// beginRecovery 预算用完时返回 false
func (s *runState) beginRecovery() (attempt int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retryCount >= s.retryBudget {
		return s.retryCount, false
	}
	s.retryCount++
	s.status = entities.TaskStatusRecovering
	return s.retryCount, true
}

func (s *runState) recordRecovery(entry entities.RecoveryAttempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, entry)
	if entry.Success {
		s.status = entities.TaskStatusRunning
		s.lastError = ""
	}
}

// markStopping 已经在停止时返回 false
func (s *runState) markStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready || s.stopping {
		return false
	}
	s.stopping = true
	return true
}

func (s *runState) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

func (s *runState) snapshot() *entities.RuntimeStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := s.status
	if s.stopping && status != entities.TaskStatusErrorTerminal {
		status = entities.TaskStatusStopping
	}

	st := &entities.RuntimeStatus{
		TaskID:          s.cfg.ID,
		Name:            s.cfg.Name,
		Running:         s.status != entities.TaskStatusErrorTerminal,
		Status:          status,
		Cycle:           s.cycle,
		StartedAt:       timePtr(s.startedAt),
		LastCheckAt:     timePtr(s.lastCheckAt),
		NextCheckAt:     timePtr(s.nextCheckAt),
		LastError:       s.lastError,
		RetryCount:      s.retryCount,
		RetryBudget:     s.retryBudget,
		RecoveryHistory: append([]entities.RecoveryAttempt{}, s.history...),
	}
	return st
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
