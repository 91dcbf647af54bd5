package task

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/easayliu/alist-photo-relay/internal/application/contracts"
	"github.com/easayliu/alist-photo-relay/internal/application/services/download"
	"github.com/easayliu/alist-photo-relay/internal/application/services/events"
	"github.com/easayliu/alist-photo-relay/internal/application/services/extract"
	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
	"github.com/easayliu/alist-photo-relay/internal/domain/repositories"
	"github.com/easayliu/alist-photo-relay/internal/infrastructure/config"
	apperrors "github.com/easayliu/alist-photo-relay/internal/shared/errors"
	"github.com/easayliu/alist-photo-relay/pkg/backoff"
	"github.com/easayliu/alist-photo-relay/pkg/logger"
)

const (
	DefaultRetryBudget = 3
	DefaultStopTimeout = 30 * time.Second

	StopReasonManual   = "manual"
	StopReasonShutdown = "shutdown"
	StopReasonError    = "error"
)

// Options 调度参数
type Options struct {
	RetryBudget     int
	StopTimeout     time.Duration
	RecoveryBackoff backoff.Config
}

// OptionsFromConfig 从配置构造
func OptionsFromConfig(cfg config.SchedulerConfig) Options {
	opts := Options{
		RetryBudget:     cfg.RetryBudget,
		StopTimeout:     cfg.StopTimeout,
		RecoveryBackoff: backoff.DefaultConfig(),
	}
	if opts.RetryBudget < 0 {
		opts.RetryBudget = 0
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if cfg.RecoveryBackoff.Base > 0 {
		opts.RecoveryBackoff.Base = cfg.RecoveryBackoff.Base
	}
	if cfg.RecoveryBackoff.Max > 0 {
		opts.RecoveryBackoff.Max = cfg.RecoveryBackoff.Max
	}
	if cfg.RecoveryBackoff.Jitter > 0 {
		opts.RecoveryBackoff.Jitter = cfg.RecoveryBackoff.Jitter
	}
	return opts
}

// Deps Manager 依赖的协作者
type Deps struct {
	Configs    repositories.TaskConfigStore
	History    repositories.HistoryStore
	Storage    contracts.StorageProvider
	Sessions   contracts.SessionFactory
	Extractor  *extract.Extractor
	Downloader *download.Service
	Emitter    *events.Emitter
}

// Manager 任务编排器，进程内唯一实例，负责任务生命周期、循环和恢复
type Manager struct {
	configs    repositories.TaskConfigStore
	history    repositories.HistoryStore
	storage    contracts.StorageProvider
	sessions   contracts.SessionFactory
	extractor  *extract.Extractor
	downloader *download.Service
	emitter    *events.Emitter
	opts       Options

	mu         sync.Mutex
	running    map[string]*runState
	terminated map[string]*entities.RuntimeStatus
}

var _ contracts.TaskService = (*Manager)(nil)

func NewManager(deps Deps, opts Options) *Manager {
	if deps.Emitter == nil {
		deps.Emitter = events.NewEmitter()
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.NewExtractor(extract.DefaultOptions())
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	return &Manager{
		configs:    deps.Configs,
		history:    deps.History,
		storage:    deps.Storage,
		sessions:   deps.Sessions,
		extractor:  deps.Extractor,
		downloader: deps.Downloader,
		emitter:    deps.Emitter,
		opts:       opts,
		running:    make(map[string]*runState),
		terminated: make(map[string]*entities.RuntimeStatus),
	}
}

// Start 启动任务
//
// 错误优先级: ALREADY_RUNNING > NOT_FOUND > STORAGE_NOT_CONNECTED
func (m *Manager) Start(ctx context.Context, taskID string) (err error) {
	st := newRunState(m.opts.RetryBudget)

	m.mu.Lock()
	if _, exists := m.running[taskID]; exists {
		m.mu.Unlock()
		return apperrors.NewServiceErrorf(apperrors.ErrorCodeAlreadyRunning, "task %s is already running", taskID)
	}
	// 占位，防止并发 Start 同一个任务
	m.running[taskID] = st
	m.mu.Unlock()

	defer func() {
		if err != nil {
			m.release(taskID, st)
		}
	}()

	cfg, err := m.configs.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, repositories.ErrTaskNotFound) {
			return apperrors.NewServiceErrorf(apperrors.ErrorCodeNotFound, "task %s not found", taskID)
		}
		return apperrors.NewServiceErrorWithCause(apperrors.ErrorCodeInternalError, "failed to load task", err)
	}
	st.cfg = cfg

	if !m.storage.IsConnected() {
		return apperrors.NewServiceError(apperrors.ErrorCodeStorageNotConnected, "storage provider has no credentials")
	}

	if _, err := m.storage.EnsureFolder(ctx, cfg.DestinationPath); err != nil {
		return apperrors.NewServiceErrorWithCause(apperrors.ErrorCodeServiceUnavailable, "failed to prepare destination folder", err)
	}

	session, err := m.openSession(ctx, cfg)
	if err != nil {
		return apperrors.NewServiceErrorWithCause(apperrors.ErrorCodeServiceUnavailable, "failed to open automation session", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	st.mu.Lock()
	st.session = session
	st.cancel = cancel
	st.startedAt = time.Now()
	st.status = entities.TaskStatusRunning
	st.ready = true
	st.mu.Unlock()

	m.mu.Lock()
	delete(m.terminated, taskID)
	m.mu.Unlock()

	if err := m.configs.SetActive(ctx, taskID, true); err != nil {
		logger.Warn("Failed to mark task active", "task_id", taskID, "error", err)
	}

	logger.Info("Task started", "task_id", taskID, "name", cfg.Name, "target", cfg.TargetURL)
	m.emit(entities.EventTaskStarted, taskID, entities.StartedPayload{Name: cfg.Name, TargetURL: cfg.TargetURL})

	go m.run(runCtx, st)
	return nil
}

// openSession 创建会话并打开目标页面
func (m *Manager) openSession(ctx context.Context, cfg *entities.TaskConfig) (contracts.Session, error) {
	session, err := m.sessions.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := session.Navigate(ctx, cfg.TargetURL); err != nil {
		if cerr := session.Close(); cerr != nil {
			logger.Debug("Failed to close session after navigation error", "task_id", cfg.ID, "error", cerr)
		}
		return nil, err
	}
	return session, nil
}

// release 从运行表中移除 st(仍是同一实例时)
func (m *Manager) release(taskID string, st *runState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running[taskID] == st {
		delete(m.running, taskID)
	}
}

// Stop 停止任务，等待循环退出(最多 StopTimeout)后关闭会话
func (m *Manager) Stop(ctx context.Context, taskID, reason string) error {
	return m.stop(ctx, taskID, reason, false)
}

func (m *Manager) stop(ctx context.Context, taskID, reason string, keepActive bool) error {
	if reason == "" {
		reason = StopReasonManual
	}

	m.mu.Lock()
	st, ok := m.running[taskID]
	m.mu.Unlock()
	if !ok || !st.markStopping() {
		return apperrors.NewServiceErrorf(apperrors.ErrorCodeNotRunning, "task %s is not running", taskID)
	}

	st.cancel()

	exited := true
	timer := time.NewTimer(m.opts.StopTimeout)
	defer timer.Stop()
	select {
	case <-st.done:
	case <-timer.C:
		exited = false
		logger.Warn("Task loop did not exit before stop timeout, releasing it in background",
			"task_id", taskID, "timeout", m.opts.StopTimeout)
	case <-ctx.Done():
		exited = false
		logger.Warn("Stop interrupted, releasing task loop in background", "task_id", taskID, "error", ctx.Err())
	}

	m.finalize(st, reason, nil, keepActive, exited)
	return nil
}

// finalize 更新 active 标记并发出 stopped 事件，只执行一次
//
// loopDone 为 false 时循环仍在处理当前条目，会话和运行表占位要等循环退出后再释放，
// 期间 Start 返回 ALREADY_RUNNING。terminal 非空表示因错误终止，快照会保留到下次 Start
func (m *Manager) finalize(st *runState, reason string, terminal error, keepActive, loopDone bool) {
	st.finalize.Do(func() {
		taskID := st.taskID()

		if terminal != nil {
			snap := st.snapshot()
			snap.Running = false
			m.mu.Lock()
			m.terminated[taskID] = snap
			m.mu.Unlock()
		}

		if loopDone {
			m.releaseLoop(st)
		} else {
			go func() {
				<-st.done
				m.releaseLoop(st)
				logger.Info("Task loop exited after stop", "task_id", taskID)
			}()
		}

		if !keepActive {
			// 请求可能已经结束，用独立 ctx
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := m.configs.SetActive(ctx, taskID, false); err != nil {
				logger.Warn("Failed to mark task inactive", "task_id", taskID, "error", err)
			}
			cancel()
		}

		logger.Info("Task stopped", "task_id", taskID, "reason", reason)
		m.emit(entities.EventTaskStopped, taskID, entities.StoppedPayload{Reason: reason})
	})
}

// releaseLoop 关闭会话并移出运行表，只能在循环不再使用会话后调用
func (m *Manager) releaseLoop(st *runState) {
	if session := st.swapSession(nil); session != nil {
		if err := session.Close(); err != nil {
			logger.Warn("Failed to close automation session", "task_id", st.taskID(), "error", err)
		}
	}
	m.release(st.taskID(), st)
}

// Status 任务状态快照，任务配置不存在时返回 NOT_FOUND
func (m *Manager) Status(ctx context.Context, taskID string) (*entities.RuntimeStatus, error) {
	cfg, err := m.configs.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, repositories.ErrTaskNotFound) {
			return nil, apperrors.NewServiceErrorf(apperrors.ErrorCodeNotFound, "task %s not found", taskID)
		}
		return nil, apperrors.NewServiceErrorWithCause(apperrors.ErrorCodeInternalError, "failed to load task", err)
	}
	return m.statusFor(ctx, cfg)
}

// List 所有任务的状态
func (m *Manager) List(ctx context.Context) ([]*entities.RuntimeStatus, error) {
	cfgs, err := m.configs.GetAll(ctx)
	if err != nil {
		return nil, apperrors.NewServiceErrorWithCause(apperrors.ErrorCodeInternalError, "failed to load tasks", err)
	}

	result := make([]*entities.RuntimeStatus, 0, len(cfgs))
	for _, cfg := range cfgs {
		st, err := m.statusFor(ctx, cfg)
		if err != nil {
			return nil, err
		}
		result = append(result, st)
	}
	return result, nil
}

func (m *Manager) statusFor(ctx context.Context, cfg *entities.TaskConfig) (*entities.RuntimeStatus, error) {
	counts, err := m.history.AggregateCounts(ctx, cfg.ID)
	if err != nil {
		return nil, apperrors.NewServiceErrorWithCause(apperrors.ErrorCodeInternalError, "failed to aggregate history", err)
	}

	m.mu.Lock()
	st := m.running[cfg.ID]
	terminal := m.terminated[cfg.ID]
	m.mu.Unlock()

	var status *entities.RuntimeStatus
	switch {
	case st != nil && st.isReady():
		status = st.snapshot()
	case terminal != nil:
		cp := *terminal
		cp.RecoveryHistory = append([]entities.RecoveryAttempt{}, terminal.RecoveryHistory...)
		status = &cp
	default:
		status = &entities.RuntimeStatus{
			TaskID:          cfg.ID,
			Status:          entities.TaskStatusIdle,
			RetryBudget:     m.opts.RetryBudget,
			RecoveryHistory: []entities.RecoveryAttempt{},
		}
	}

	status.Name = cfg.Name
	status.Counts = *counts
	return status, nil
}

// Subscribe 订阅任务事件
func (m *Manager) Subscribe(handler contracts.EventHandler) func() {
	return m.emitter.Subscribe(handler)
}

// RunningCount 正在运行的任务数
func (m *Manager) RunningCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, st := range m.running {
		if st.isReady() {
			n++
		}
	}
	return n
}

// Autostart 启动所有 active 的任务，返回成功启动的数量
func (m *Manager) Autostart(ctx context.Context) int {
	cfgs, err := m.configs.GetAll(ctx)
	if err != nil {
		logger.Error("Failed to load tasks for autostart", "error", err)
		return 0
	}

	started := 0
	for _, cfg := range cfgs {
		if !cfg.Active {
			continue
		}
		if err := m.Start(ctx, cfg.ID); err != nil {
			logger.Warn("Autostart failed", "task_id", cfg.ID, "error", err)
			continue
		}
		started++
	}
	return started
}

// Shutdown 停止所有任务，保留 active 标记以便下次启动时恢复
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := m.stop(ctx, id, StopReasonShutdown, true); err != nil &&
				!apperrors.IsCode(err, apperrors.ErrorCodeNotRunning) {
				logger.Warn("Failed to stop task on shutdown", "task_id", id, "error", err)
			}
		}(id)
	}
	wg.Wait()
}

func (m *Manager) emit(eventType entities.EventType, taskID string, payload any) {
	m.emitter.Emit(entities.NewEvent(eventType, taskID, payload))
}
