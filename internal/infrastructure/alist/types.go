package alist

import "encoding/json"

// 业务码
const (
	codeSuccess      = 200
	codeUnauthorized = 401
)

// Response Alist 统一响应结构
type Response struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// LoginRequest 登录请求结构
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginData 登录响应数据
type LoginData struct {
	Token string `json:"token"`
}

// FileGetRequest 获取文件信息请求
type FileGetRequest struct {
	Path     string `json:"path"`
	Password string `json:"password,omitempty"`
}

// FileInfo 文件信息
type FileInfo struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	IsDir    bool   `json:"is_dir"`
	Modified string `json:"modified"`
	RawURL   string `json:"raw_url"`
	Provider string `json:"provider"`
}

// MkdirRequest 创建目录请求
type MkdirRequest struct {
	Path string `json:"path"`
}
