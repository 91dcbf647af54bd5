package entities

import (
	"encoding/json"
	"time"
)

// EventType 生命周期事件类型
type EventType string

const (
	EventTaskStarted       EventType = "task:started"
	EventTaskStopped       EventType = "task:stopped"
	EventScanStarted       EventType = "scan:started"
	EventScanProgress      EventType = "scan:progress"
	EventScanCompleted     EventType = "scan:completed"
	EventDownloadStarted   EventType = "download:started"
	EventDownloadCompleted EventType = "download:completed"
	EventDownloadFailed    EventType = "download:failed"
	EventTaskRecovering    EventType = "task:recovering"
	EventTaskRecovered     EventType = "task:recovered"
	EventCycleCompleted    EventType = "cycle:completed"
	EventTaskError         EventType = "task:error"
	EventTaskLog           EventType = "task:log"
)

// Event 任务事件，Payload 为下方各 *Payload 类型之一
type Event struct {
	Type      EventType
	TaskID    string
	Timestamp time.Time
	Payload   any
}

// MarshalJSON 把 Payload 字段平铺到顶层，附带 type/taskId/timestamp
func (e Event) MarshalJSON() ([]byte, error) {
	fields := map[string]any{}
	if e.Payload != nil {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
	}
	fields["type"] = e.Type
	fields["taskId"] = e.TaskID
	fields["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	return json.Marshal(fields)
}

// NewEvent 创建带当前时间戳的事件
func NewEvent(eventType EventType, taskID string, payload any) Event {
	return Event{
		Type:      eventType,
		TaskID:    taskID,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

type StartedPayload struct {
	Name      string `json:"name"`
	TargetURL string `json:"targetUrl"`
}

type StoppedPayload struct {
	Reason string `json:"reason"`
}

type ScanStartedPayload struct {
	Cycle int `json:"cycle"`
}

type ScanProgressPayload struct {
	Cycle   int `json:"cycle"`
	Current int `json:"current"`
	Total   int `json:"total"`
}

type ScanCompletedPayload struct {
	Cycle int `json:"cycle"`
	Found int `json:"found"`
	New   int `json:"new"`
}

type DownloadStartedPayload struct {
	Fingerprint string `json:"fingerprint"`
	Filename    string `json:"filename"`
	Index       int    `json:"index"`
	Total       int    `json:"total"`
}

type DownloadCompletedPayload struct {
	Fingerprint string `json:"fingerprint"`
	Filename    string `json:"filename"`
	Path        string `json:"path"`
	Size        int64  `json:"size"`
}

type DownloadFailedPayload struct {
	Fingerprint string `json:"fingerprint"`
	Filename    string `json:"filename"`
	Error       string `json:"error"`
}

type RecoveringPayload struct {
	Attempt  int    `json:"attempt"`
	Budget   int    `json:"budget"`
	Category string `json:"category"`
	DelayMs  int64  `json:"delayMs"`
	Error    string `json:"error"`
}

type RecoveredPayload struct {
	Attempt int `json:"attempt"`
}

type CycleCompletedPayload struct {
	Cycle       int       `json:"cycle"`
	Found       int       `json:"found"`
	New         int       `json:"new"`
	Resolved    int       `json:"resolved"`
	Downloaded  int       `json:"downloaded"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	DurationMs  int64     `json:"durationMs"`
	NextCheckAt time.Time `json:"nextCheckAt"`
}

type ErrorPayload struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Fatal    bool   `json:"fatal"`
}

type LogPayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}
