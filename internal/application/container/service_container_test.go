package container

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
	"github.com/easayliu/alist-photo-relay/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Alist: config.AlistConfig{BaseURL: "http://127.0.0.1:1", Token: "token"},
		Storage: config.StorageConfig{
			DataDir:       dir,
			HistoryDriver: HistoryDriverSQLite,
		},
		Automation: config.AutomationConfig{Engine: "static", Timeout: time.Second},
		Scheduler:  config.SchedulerConfig{RetryBudget: 3, StopTimeout: time.Second},
		Metrics:    config.MetricsConfig{Enabled: true},
		Digest:     config.DigestConfig{Enabled: true, Cron: "0 9 * * *"},
		Tasks: []entities.TaskConfig{
			{ID: "album", Name: "相册", TargetURL: "http://127.0.0.1:1/album", DestinationPath: "/photos"},
		},
	}
}

func TestNewServiceContainer(t *testing.T) {
	cfg := testConfig(t)

	c, err := NewServiceContainer(cfg)
	require.NoError(t, err)

	statuses, err := c.GetTaskManager().List(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "album", statuses[0].TaskID)
	assert.Equal(t, entities.TaskStatusIdle, statuses[0].Status)

	assert.NotNil(t, c.MetricsHandler())
	// 未配置 telegram 时摘要不启用
	assert.Nil(t, c.digest)
	assert.Nil(t, c.notifier)

	require.NoError(t, c.Start(context.Background()))
	c.Shutdown(context.Background())
	assert.Empty(t, c.unsubscribers)
}

func TestNewServiceContainer_MetricsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = false

	c, err := NewServiceContainer(cfg)
	require.NoError(t, err)
	defer c.Shutdown(context.Background())

	assert.Nil(t, c.MetricsHandler())
}

func TestOpenHistoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("sqlite默认路径", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Storage.HistoryDriver = ""

		store, err := OpenHistoryStore(ctx, cfg)
		require.NoError(t, err)
		defer store.Close()

		exists, err := store.Exists(ctx, "album", "fp")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := testConfig(t)
		cfg.Storage.HistoryDriver = HistoryDriverRedis
		cfg.Storage.Redis = config.RedisConfig{Addr: mr.Addr(), KeyPrefix: "relay"}

		store, err := OpenHistoryStore(ctx, cfg)
		require.NoError(t, err)
		defer store.Close()

		require.NoError(t, store.Upsert(ctx, &entities.DownloadRecord{
			TaskID:      "album",
			Fingerprint: "fp",
			Status:      entities.RecordStatusSuccess,
			Timestamp:   time.Now(),
		}))
		assert.True(t, mr.Exists("relay:history:album:status"))
	})

	t.Run("redis不可达", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Storage.HistoryDriver = HistoryDriverRedis
		cfg.Storage.Redis = config.RedisConfig{Addr: "127.0.0.1:1"}

		_, err := OpenHistoryStore(ctx, cfg)
		assert.Error(t, err)
	})

	t.Run("未知驱动", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Storage.HistoryDriver = "mongo"

		_, err := OpenHistoryStore(ctx, cfg)
		assert.ErrorContains(t, err, "unknown history driver")
	})
}
