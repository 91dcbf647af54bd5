package servicetest

import (
	"context"
	"sync"

	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
)

// History 内存版去重存储，语义与持久化实现一致
type History struct {
	mu      sync.Mutex
	records map[string]map[string]entities.DownloadRecord
	err     error
}

func NewHistory() *History {
	return &History{records: make(map[string]map[string]entities.DownloadRecord)}
}

// Fail 之后的调用全部返回 err，传 nil 恢复
func (h *History) Fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

func (h *History) Exists(ctx context.Context, taskID, fingerprint string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return false, h.err
	}
	rec, ok := h.records[taskID][fingerprint]
	return ok && rec.Status == entities.RecordStatusSuccess, nil
}

func (h *History) Upsert(ctx context.Context, record *entities.DownloadRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	byTask, ok := h.records[record.TaskID]
	if !ok {
		byTask = make(map[string]entities.DownloadRecord)
		h.records[record.TaskID] = byTask
	}
	if cur, ok := byTask[record.Fingerprint]; ok &&
		cur.Status == entities.RecordStatusSuccess && record.Status != entities.RecordStatusSuccess {
		return nil
	}
	byTask[record.Fingerprint] = *record
	return nil
}

func (h *History) AggregateCounts(ctx context.Context, taskID string) (*entities.HistoryCounts, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	counts := &entities.HistoryCounts{}
	for _, rec := range h.records[taskID] {
		counts.Total++
		switch rec.Status {
		case entities.RecordStatusSuccess:
			counts.Success++
			if counts.LastSuccessAt == nil || rec.Timestamp.After(*counts.LastSuccessAt) {
				ts := rec.Timestamp
				counts.LastSuccessAt = &ts
			}
		case entities.RecordStatusFailed:
			counts.Failed++
		}
	}
	return counts, nil
}

// Records 某个任务的全部记录
func (h *History) Records(taskID string) map[string]entities.DownloadRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]entities.DownloadRecord, len(h.records[taskID]))
	for k, v := range h.records[taskID] {
		out[k] = v
	}
	return out
}
