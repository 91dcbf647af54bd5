package contracts

import (
	"context"
	"errors"
)

// ErrStorageNotConnected 远端存储未配置凭据
var ErrStorageNotConnected = errors.New("storage not connected")

// UploadResult 上传结果
type UploadResult struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// StorageProvider 远端存储能力，令牌获取与刷新在实现内部完成
type StorageProvider interface {
	IsConnected() bool
	EnsureFolder(ctx context.Context, path string) (bool, error)
	Upload(ctx context.Context, path string, data []byte) (*UploadResult, error)
}

// ResourceFetcher 拉取资源字节
type ResourceFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}
