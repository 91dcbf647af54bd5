package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
	"github.com/easayliu/alist-photo-relay/internal/domain/repositories"
	"github.com/google/uuid"
)

const tasksFileName = "tasks.json"

// TaskRepository 基于 JSON 文件的任务配置存储
type TaskRepository struct {
	filePath string
	mu       sync.RWMutex
	tasks    map[string]*entities.TaskConfig
}

var _ repositories.TaskConfigStore = (*TaskRepository)(nil)

func NewTaskRepository(dataDir string) (*TaskRepository, error) {
	// 确保数据目录存在
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	repo := &TaskRepository{
		filePath: filepath.Join(dataDir, tasksFileName),
		tasks:    make(map[string]*entities.TaskConfig),
	}

	// 加载已存在的任务
	if err := repo.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}

	return repo, nil
}

// load 从文件加载任务
func (r *TaskRepository) load() error {
	data, err := os.ReadFile(r.filePath)
	if err != nil {
		return err
	}

	var tasks []*entities.TaskConfig
	if err := json.Unmarshal(data, &tasks); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.tasks = make(map[string]*entities.TaskConfig)
	for _, task := range tasks {
		r.tasks[task.ID] = task
	}

	return nil
}

// saveUnlocked 保存任务到文件（调用时必须已经持有锁）
func (r *TaskRepository) saveUnlocked() error {
	data, err := json.MarshalIndent(r.sortedUnlocked(), "", "  ")
	if err != nil {
		return err
	}

	// 先写临时文件再改名，避免写一半时进程退出
	tmp := r.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, r.filePath)
}

func (r *TaskRepository) sortedUnlocked() []*entities.TaskConfig {
	tasks := make([]*entities.TaskConfig, 0, len(r.tasks))
	for _, task := range r.tasks {
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks
}

// Create 创建新任务
func (r *TaskRepository) Create(task *entities.TaskConfig) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[task.ID]; exists {
		return fmt.Errorf("task already exists: %s", task.ID)
	}
	r.tasks[task.ID] = copyTask(task)
	return r.saveUnlocked()
}

// Update 更新任务
func (r *TaskRepository) Update(task *entities.TaskConfig) error {
	task.UpdatedAt = time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[task.ID]; !exists {
		return fmt.Errorf("%w: %s", repositories.ErrTaskNotFound, task.ID)
	}
	r.tasks[task.ID] = copyTask(task)
	return r.saveUnlocked()
}

// Delete 删除任务
func (r *TaskRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, id)
	return r.saveUnlocked()
}

// Seed 将配置文件中的任务写入存储
//
// 已存在的任务保留 active 标记和创建时间，其余字段以配置文件为准
func (r *TaskRepository) Seed(tasks []entities.TaskConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for i := range tasks {
		task := tasks[i]
		if task.ID == "" {
			return fmt.Errorf("seed task %q has no id", task.Name)
		}
		if existing, ok := r.tasks[task.ID]; ok {
			task.Active = existing.Active
			task.CreatedAt = existing.CreatedAt
		} else {
			task.CreatedAt = now
		}
		task.UpdatedAt = now
		r.tasks[task.ID] = &task
	}
	return r.saveUnlocked()
}

// GetByID 根据ID获取任务，返回副本
func (r *TaskRepository) GetByID(_ context.Context, id string) (*entities.TaskConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, exists := r.tasks[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", repositories.ErrTaskNotFound, id)
	}

	return copyTask(task), nil
}

// GetAll 获取所有任务，按创建时间排序
func (r *TaskRepository) GetAll(_ context.Context) ([]*entities.TaskConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sorted := r.sortedUnlocked()
	tasks := make([]*entities.TaskConfig, len(sorted))
	for i, task := range sorted {
		tasks[i] = copyTask(task)
	}
	return tasks, nil
}

// SetActive 更新任务的 active 标记
func (r *TaskRepository) SetActive(_ context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, exists := r.tasks[id]
	if !exists {
		return fmt.Errorf("%w: %s", repositories.ErrTaskNotFound, id)
	}
	if task.Active == active {
		return nil
	}

	task.Active = active
	task.UpdatedAt = time.Now()
	return r.saveUnlocked()
}

func copyTask(task *entities.TaskConfig) *entities.TaskConfig {
	c := *task
	return &c
}
