package telegram

import "time"

// NotificationMessage 推送到 Telegram 的消息
type NotificationMessage struct {
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Extra     map[string]any `json:"extra,omitempty"`
}
