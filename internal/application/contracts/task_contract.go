package contracts

import (
	"context"

	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
)

// EventHandler 事件订阅回调
type EventHandler func(entities.Event)

// TaskService 任务编排对外契约
type TaskService interface {
	Start(ctx context.Context, taskID string) error
	Stop(ctx context.Context, taskID, reason string) error
	Status(ctx context.Context, taskID string) (*entities.RuntimeStatus, error)
	List(ctx context.Context) ([]*entities.RuntimeStatus, error)
	Subscribe(handler EventHandler) (unsubscribe func())
}
