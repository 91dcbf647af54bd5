package container

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/easayliu/alist-photo-relay/internal/application/contracts"
	"github.com/easayliu/alist-photo-relay/internal/application/services/digest"
	"github.com/easayliu/alist-photo-relay/internal/application/services/download"
	"github.com/easayliu/alist-photo-relay/internal/application/services/events"
	"github.com/easayliu/alist-photo-relay/internal/application/services/extract"
	"github.com/easayliu/alist-photo-relay/internal/application/services/notification"
	"github.com/easayliu/alist-photo-relay/internal/application/services/task"
	"github.com/easayliu/alist-photo-relay/internal/domain/repositories"
	"github.com/easayliu/alist-photo-relay/internal/infrastructure/alist"
	"github.com/easayliu/alist-photo-relay/internal/infrastructure/browser"
	"github.com/easayliu/alist-photo-relay/internal/infrastructure/config"
	"github.com/easayliu/alist-photo-relay/internal/infrastructure/history"
	"github.com/easayliu/alist-photo-relay/internal/infrastructure/metrics"
	"github.com/easayliu/alist-photo-relay/internal/infrastructure/repository"
	"github.com/easayliu/alist-photo-relay/internal/infrastructure/telegram"
	"github.com/easayliu/alist-photo-relay/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	HistoryDriverSQLite = "sqlite"
	HistoryDriverRedis  = "redis"
)

// HistoryBackend 可关闭的历史存储
type HistoryBackend interface {
	repositories.HistoryStore
	io.Closer
}

// ServiceContainer 服务容器 - 实现依赖注入
type ServiceContainer struct {
	config      *config.Config
	taskRepo    *repository.TaskRepository
	history     HistoryBackend
	alistClient *alist.Client
	emitter     *events.Emitter
	manager     *task.Manager

	// 可选的事件订阅者
	notifier *notification.Service
	metrics  *metrics.Collector
	digest   *digest.Service

	unsubscribers []func()
}

// NewServiceContainer 按配置装配所有服务
func NewServiceContainer(cfg *config.Config) (*ServiceContainer, error) {
	taskRepo, err := OpenTaskRepository(cfg)
	if err != nil {
		return nil, err
	}

	store, err := OpenHistoryStore(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	c := &ServiceContainer{
		config:      cfg,
		taskRepo:    taskRepo,
		history:     store,
		alistClient: alist.NewClient(cfg.Alist),
		emitter:     events.NewEmitter(),
	}

	downloader := download.NewService(
		c.alistClient,
		download.NewHTTPFetcher(cfg.Download),
		download.OptionsFromConfig(cfg.Download),
	)

	c.manager = task.NewManager(task.Deps{
		Configs:    taskRepo,
		History:    store,
		Storage:    c.alistClient,
		Sessions:   browser.NewFactory(cfg.Automation, cfg.Download.UserAgent),
		Extractor:  extract.NewExtractor(extract.OptionsFromConfig(cfg.Extraction)),
		Downloader: downloader,
		Emitter:    c.emitter,
	}, task.OptionsFromConfig(cfg.Scheduler))

	if err := c.initObservers(); err != nil {
		_ = store.Close()
		return nil, err
	}

	logger.Info("Service container initialized",
		"history_driver", historyDriver(cfg),
		"automation_engine", cfg.Automation.Engine,
		"alist_connected", c.alistClient.IsConnected(),
		"telegram", c.notifier != nil,
		"metrics", c.metrics != nil,
		"digest", c.digest != nil)

	return c, nil
}

func (c *ServiceContainer) initObservers() error {
	cfg := c.config

	if cfg.Metrics.Enabled {
		c.metrics = metrics.NewCollector()
		c.subscribe(c.metrics.Handle)
	}

	if cfg.Telegram.Enabled {
		if cfg.Telegram.BotToken == "" {
			logger.Warn("Telegram enabled without bot token, notifications disabled")
		} else {
			client := telegram.NewClient(&cfg.Telegram)
			c.notifier = notification.NewService(client, cfg.Telegram)
			c.subscribe(c.notifier.Handle)
		}
	}

	if cfg.Digest.Enabled {
		if c.notifier == nil {
			logger.Warn("Digest enabled but telegram notifications are off, digest disabled")
			return nil
		}
		svc, err := digest.NewService(cfg.Digest.Cron, c.manager, c.notifier)
		if err != nil {
			return err
		}
		c.digest = svc
	}
	return nil
}

func (c *ServiceContainer) subscribe(handler contracts.EventHandler) {
	c.unsubscribers = append(c.unsubscribers, c.emitter.Subscribe(handler))
}

// Start 启动后台组件，开启自动启动时恢复上次处于激活状态的任务
func (c *ServiceContainer) Start(ctx context.Context) error {
	if c.notifier != nil {
		c.notifier.Start()
	}
	if c.digest != nil {
		if err := c.digest.Start(); err != nil {
			return err
		}
	}
	if c.config.Scheduler.Autostart {
		started := c.manager.Autostart(ctx)
		logger.Info("Autostart finished", "started", started)
	}
	return nil
}

// Shutdown 停止所有任务并释放资源
func (c *ServiceContainer) Shutdown(ctx context.Context) {
	c.manager.Shutdown(ctx)

	if c.digest != nil {
		c.digest.Stop(ctx)
	}
	for _, unsubscribe := range c.unsubscribers {
		unsubscribe()
	}
	c.unsubscribers = nil
	if c.notifier != nil {
		c.notifier.Close()
	}
	if err := c.history.Close(); err != nil {
		logger.Warn("Failed to close history store", "error", err)
	}
}

// GetConfig 获取配置
func (c *ServiceContainer) GetConfig() *config.Config {
	return c.config
}

// GetTaskManager 获取任务编排器
func (c *ServiceContainer) GetTaskManager() *task.Manager {
	return c.manager
}

// GetTaskRepository 获取任务配置存储
func (c *ServiceContainer) GetTaskRepository() *repository.TaskRepository {
	return c.taskRepo
}

// GetHistoryStore 获取历史存储
func (c *ServiceContainer) GetHistoryStore() repositories.HistoryStore {
	return c.history
}

// MetricsHandler 指标未开启时返回 nil
func (c *ServiceContainer) MetricsHandler() http.Handler {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.Handler()
}

// OpenTaskRepository 打开任务配置存储并写入配置文件中的种子任务
func OpenTaskRepository(cfg *config.Config) (*repository.TaskRepository, error) {
	repo, err := repository.NewTaskRepository(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open task repository: %w", err)
	}
	if len(cfg.Tasks) > 0 {
		if err := repo.Seed(cfg.Tasks); err != nil {
			return nil, fmt.Errorf("seed tasks: %w", err)
		}
	}
	return repo, nil
}

// OpenHistoryStore 按 storage.history_driver 打开历史存储
func OpenHistoryStore(ctx context.Context, cfg *config.Config) (HistoryBackend, error) {
	switch historyDriver(cfg) {
	case HistoryDriverSQLite:
		path := cfg.Storage.SQLitePath
		if path == "" {
			path = filepath.Join(cfg.Storage.DataDir, "history.db")
		}
		store, err := history.OpenSQLite(path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite history: %w", err)
		}
		return store, nil
	case HistoryDriverRedis:
		rc := cfg.Storage.Redis
		client := redis.NewClient(&redis.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis %s: %w", rc.Addr, err)
		}
		prefix := ""
		if rc.KeyPrefix != "" {
			prefix = rc.KeyPrefix + ":history"
		}
		return history.NewRedisStore(client, prefix), nil
	default:
		return nil, fmt.Errorf("unknown history driver %q", cfg.Storage.HistoryDriver)
	}
}

func historyDriver(cfg *config.Config) string {
	if cfg.Storage.HistoryDriver == "" {
		return HistoryDriverSQLite
	}
	return cfg.Storage.HistoryDriver
}
