package entities

import "time"

// TaskStatus 任务生命周期状态
type TaskStatus string

const (
	TaskStatusIdle          TaskStatus = "idle"           // 未运行
	TaskStatusRunning       TaskStatus = "running"        // 循环运行中
	TaskStatusError         TaskStatus = "error"          // 出错，等待恢复判定
	TaskStatusRecovering    TaskStatus = "recovering"     // 正在恢复
	TaskStatusStopping      TaskStatus = "stopping"       // 已请求停止，等待当前条目完成
	TaskStatusErrorTerminal TaskStatus = "error_terminal" // 无法恢复，已停止
)

// RecoveryAttempt 一次恢复尝试的记录
type RecoveryAttempt struct {
	Attempt  int       `json:"attempt"`
	At       time.Time `json:"at"`
	Category string    `json:"category"`
	Error    string    `json:"error"`
	Success  bool      `json:"success"`
}

// RuntimeStatus 任务状态快照
type RuntimeStatus struct {
	TaskID          string            `json:"task_id"`
	Name            string            `json:"name"`
	Running         bool              `json:"running"`
	Status          TaskStatus        `json:"status"`
	Cycle           int               `json:"cycle"`
	StartedAt       *time.Time        `json:"started_at,omitempty"`
	LastCheckAt     *time.Time        `json:"last_check_at,omitempty"`
	NextCheckAt     *time.Time        `json:"next_check_at,omitempty"`
	LastError       string            `json:"last_error,omitempty"`
	RetryCount      int               `json:"retry_count"`
	RetryBudget     int               `json:"retry_budget"`
	RecoveryHistory []RecoveryAttempt `json:"recovery_history"`
	Counts          HistoryCounts     `json:"counts"`
}
