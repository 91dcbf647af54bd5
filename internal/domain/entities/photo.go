package entities

import "time"

// PhotoFingerprint 发现阶段产出的条目标识
type PhotoFingerprint struct {
	Ordinal      int    `json:"ordinal"`
	Fingerprint  string `json:"fingerprint"`
	ThumbnailRef string `json:"thumbnail_ref"`
}

// ResolvedResource 解析阶段产出的可下载资源
type ResolvedResource struct {
	PhotoFingerprint
	ResourceURL string `json:"resource_url"`
	Filename    string `json:"filename"`
}

// RecordStatus 下载记录状态
type RecordStatus string

const (
	RecordStatusSuccess RecordStatus = "success"
	RecordStatusFailed  RecordStatus = "failed"
)

// DownloadRecord 去重/历史记录，(TaskID, Fingerprint) 唯一
type DownloadRecord struct {
	TaskID          string       `json:"task_id"`
	Fingerprint     string       `json:"fingerprint"`
	Filename        string       `json:"filename"`
	ThumbnailRef    string       `json:"thumbnail_ref"`
	DestinationPath string       `json:"destination_path"`
	ByteSize        int64        `json:"byte_size"`
	Status          RecordStatus `json:"status"`
	ErrorText       string       `json:"error_text,omitempty"`
	Timestamp       time.Time    `json:"timestamp"`
}

// HistoryCounts 单个任务的下载统计
type HistoryCounts struct {
	Total         int        `json:"total"`
	Success       int        `json:"success"`
	Failed        int        `json:"failed"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
}
