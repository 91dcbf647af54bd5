package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
	"github.com/easayliu/alist-photo-relay/internal/domain/repositories"
	"github.com/redis/go-redis/v9"
)

// 已成功的记录只接受新的成功记录
var upsertScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[2], ARGV[1])
if current == 'success' and ARGV[2] ~= 'success' then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
return 1
`)

// RedisStore 基于 Redis 哈希的去重/历史存储
//
// 每个任务两个哈希: <prefix>:<task>:records 保存记录 JSON，
// <prefix>:<task>:status 保存 fingerprint -> status
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ repositories.HistoryStore = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "photorelay:history"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) recordsKey(taskID string) string {
	return fmt.Sprintf("%s:%s:records", s.prefix, taskID)
}

func (s *RedisStore) statusKey(taskID string) string {
	return fmt.Sprintf("%s:%s:status", s.prefix, taskID)
}

func (s *RedisStore) Exists(ctx context.Context, taskID, fingerprint string) (bool, error) {
	status, err := s.client.HGet(ctx, s.statusKey(taskID), fingerprint).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("history lookup failed: %w", err)
	}
	return status == string(entities.RecordStatusSuccess), nil
}

func (s *RedisStore) Upsert(ctx context.Context, record *entities.DownloadRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	keys := []string{s.recordsKey(record.TaskID), s.statusKey(record.TaskID)}
	if err := upsertScript.Run(ctx, s.client, keys, record.Fingerprint, string(record.Status), data).Err(); err != nil {
		return fmt.Errorf("history upsert failed: %w", err)
	}
	return nil
}

func (s *RedisStore) AggregateCounts(ctx context.Context, taskID string) (*entities.HistoryCounts, error) {
	values, err := s.client.HVals(ctx, s.recordsKey(taskID)).Result()
	if err != nil {
		return nil, fmt.Errorf("history aggregate failed: %w", err)
	}

	counts := &entities.HistoryCounts{}
	for _, raw := range values {
		var rec entities.DownloadRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
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

func (s *RedisStore) Close() error {
	return s.client.Close()
}
