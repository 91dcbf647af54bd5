package contracts

import (
	"context"
	"errors"
	"time"

	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
)

// ErrSessionClosed 自动化会话已关闭或浏览器已断开
var ErrSessionClosed = errors.New("session closed")

// Element 页面元素句柄，只在创建它的会话内有效
type Element interface {
	String() string
}

// Session 页面自动化会话
//
// 会话由单个任务独占，不要求并发安全。
type Session interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	LocateAll(ctx context.Context, selector string) ([]Element, error)
	// ReadAttribute 属性不存在时 ok 为 false
	ReadAttribute(ctx context.Context, el Element, name string) (value string, ok bool, err error)
	Click(ctx context.Context, el Element) error
	PressKey(ctx context.Context, key string) error
	Wait(ctx context.Context, d time.Duration) error
	IsAlive(ctx context.Context) bool
	Close() error
}

// SessionFactory 按任务配置创建自动化会话
type SessionFactory interface {
	Open(ctx context.Context, cfg *entities.TaskConfig) (Session, error)
}
