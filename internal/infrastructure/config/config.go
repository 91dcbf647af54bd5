package config

import (
	"strings"
	"time"

	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig          `mapstructure:"server"`
	Log        LogConfig             `mapstructure:"log"`
	Alist      AlistConfig           `mapstructure:"alist"`
	Telegram   TelegramConfig        `mapstructure:"telegram"`
	Storage    StorageConfig         `mapstructure:"storage"`
	Automation AutomationConfig      `mapstructure:"automation"`
	Scheduler  SchedulerConfig       `mapstructure:"scheduler"`
	Download   DownloadConfig        `mapstructure:"download"`
	Extraction ExtractionConfig      `mapstructure:"extraction"`
	Digest     DigestConfig          `mapstructure:"digest"`
	Metrics    MetricsConfig         `mapstructure:"metrics"`
	Tasks      []entities.TaskConfig `mapstructure:"tasks"` // 启动时写入配置存储的种子任务
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type LogConfig struct {
	Level     string `mapstructure:"level"`
	Output    string `mapstructure:"output"`
	Format    string `mapstructure:"format"`
	FilePath  string `mapstructure:"file_path"`
	Colorize  bool   `mapstructure:"colorize"`
	AddSource bool   `mapstructure:"add_source"`
}

type AlistConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	Token    string `mapstructure:"token"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	QPS      int    `mapstructure:"qps"` // 每秒请求数限制，默认50
}

type TelegramConfig struct {
	BotToken string   `mapstructure:"bot_token"`
	ChatIDs  []int64  `mapstructure:"chat_ids"`
	Enabled  bool     `mapstructure:"enabled"`
	Events   []string `mapstructure:"events"` // 需要推送的事件类型
	Queue    int      `mapstructure:"queue"`
}

type StorageConfig struct {
	DataDir       string      `mapstructure:"data_dir"`
	HistoryDriver string      `mapstructure:"history_driver"` // sqlite | redis
	SQLitePath    string      `mapstructure:"sqlite_path"`
	Redis         RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type AutomationConfig struct {
	Engine     string        `mapstructure:"engine"` // chrome | static
	ChromePath string        `mapstructure:"chrome_path"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type SchedulerConfig struct {
	RetryBudget     int           `mapstructure:"retry_budget"`
	StopTimeout     time.Duration `mapstructure:"stop_timeout"`
	RecoveryBackoff BackoffConfig `mapstructure:"recovery_backoff"`
	Autostart       bool          `mapstructure:"autostart"`
}

type BackoffConfig struct {
	Base   time.Duration `mapstructure:"base"`
	Max    time.Duration `mapstructure:"max"`
	Jitter float64       `mapstructure:"jitter"`
}

type DownloadConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     BackoffConfig `mapstructure:"backoff"`
	QPS         int           `mapstructure:"qps"`
	Timeout     time.Duration `mapstructure:"timeout"`
	UserAgent   string        `mapstructure:"user_agent"`
}

type ExtractionConfig struct {
	ScrollWait        time.Duration `mapstructure:"scroll_wait"`
	MaxScrollAttempts int           `mapstructure:"max_scroll_attempts"`
	StableRounds      int           `mapstructure:"stable_rounds"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	ProgressEvery     int           `mapstructure:"progress_every"`
}

type DigestConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Cron    string `mapstructure:"cron"` // 如 "0 9 * * *" 每天早上9点
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "console")
	v.SetDefault("log.format", "text")

	v.SetDefault("alist.base_url", "http://localhost:5244")
	v.SetDefault("alist.qps", 50)

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.queue", 64)
	v.SetDefault("telegram.events", []string{
		string(entities.EventTaskStarted),
		string(entities.EventTaskStopped),
		string(entities.EventTaskRecovering),
		string(entities.EventTaskError),
		string(entities.EventCycleCompleted),
	})

	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.history_driver", "sqlite")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.key_prefix", "photorelay")

	v.SetDefault("automation.engine", "chrome")
	v.SetDefault("automation.timeout", "30s")

	v.SetDefault("scheduler.retry_budget", 3)
	v.SetDefault("scheduler.stop_timeout", "30s")
	v.SetDefault("scheduler.recovery_backoff.base", "1s")
	v.SetDefault("scheduler.recovery_backoff.max", "30s")
	v.SetDefault("scheduler.recovery_backoff.jitter", 0.2)
	v.SetDefault("scheduler.autostart", true)

	v.SetDefault("download.max_attempts", 5)
	v.SetDefault("download.backoff.base", "1s")
	v.SetDefault("download.backoff.max", "30s")
	v.SetDefault("download.backoff.jitter", 0.2)
	v.SetDefault("download.qps", 5)
	v.SetDefault("download.timeout", "60s")
	v.SetDefault("download.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")

	v.SetDefault("extraction.scroll_wait", "1500ms")
	v.SetDefault("extraction.max_scroll_attempts", 50)
	v.SetDefault("extraction.stable_rounds", 3)
	v.SetDefault("extraction.settle_delay", "1s")
	v.SetDefault("extraction.progress_every", 20)

	v.SetDefault("digest.enabled", false)
	v.SetDefault("digest.cron", "0 9 * * *")

	v.SetDefault("metrics.enabled", true)
}

// LoadConfig 读取配置，path 为空时在 ./configs 和 . 下查找 config.yaml
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PHOTORELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
