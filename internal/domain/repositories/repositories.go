package repositories

import (
	"context"
	"errors"

	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
)

// ErrTaskNotFound 任务配置不存在
var ErrTaskNotFound = errors.New("task not found")

// TaskConfigStore 任务配置存储
type TaskConfigStore interface {
	GetByID(ctx context.Context, id string) (*entities.TaskConfig, error)
	GetAll(ctx context.Context) ([]*entities.TaskConfig, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// HistoryStore 去重/历史存储，(taskID, fingerprint) 唯一
type HistoryStore interface {
	// Exists 只有成功记录才算已存在，失败记录不阻止下次重试
	Exists(ctx context.Context, taskID, fingerprint string) (bool, error)
	// Upsert 写入或替换记录，已成功的记录不会被失败记录覆盖
	Upsert(ctx context.Context, record *entities.DownloadRecord) error
	AggregateCounts(ctx context.Context, taskID string) (*entities.HistoryCounts, error)
}
