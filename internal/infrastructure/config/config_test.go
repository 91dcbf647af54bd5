package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 3, cfg.Scheduler.RetryBudget)
	assert.Equal(t, 5, cfg.Download.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Download.Backoff.Base)
	assert.Equal(t, 30*time.Second, cfg.Download.Backoff.Max)
	assert.InDelta(t, 0.2, cfg.Download.Backoff.Jitter, 1e-9)
	assert.Equal(t, 3, cfg.Extraction.StableRounds)
	assert.Equal(t, 1500*time.Millisecond, cfg.Extraction.ScrollWait)
	assert.Equal(t, "sqlite", cfg.Storage.HistoryDriver)
	assert.Contains(t, cfg.Telegram.Events, "task:error")
}

func TestLoadConfig_FileWithTasks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	content := `
alist:
  base_url: http://alist.local:5244
  username: admin
  password: secret
scheduler:
  retry_budget: 5
tasks:
  - id: album-1
    name: family album
    target_url: https://photos.example/album/1
    interval_seconds: 120
    destination_path: /photos/family
    automation:
      headless: true
      timeout_ms: 15000
      rules:
        item_selector: ".grid img"
        full_size_selector: "a.download"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://alist.local:5244", cfg.Alist.BaseURL)
	assert.Equal(t, 5, cfg.Scheduler.RetryBudget)
	require.Len(t, cfg.Tasks, 1)

	task := cfg.Tasks[0]
	assert.Equal(t, "album-1", task.ID)
	assert.Equal(t, 120*time.Second, task.Interval())
	assert.Equal(t, 15*time.Second, task.Automation.Timeout())
	assert.Equal(t, ".grid img", task.Automation.Rules.ItemSelector)
	assert.Equal(t, "src", task.Automation.Rules.WithDefaults().ThumbnailAttribute)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PHOTORELAY_SERVER_PORT", "9090")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
}
