package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/easayliu/alist-photo-relay/internal/application/contracts"
	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
	"github.com/easayliu/alist-photo-relay/internal/infrastructure/config"
)

const (
	EngineChrome = "chrome"
	EngineStatic = "static"
)

// Factory 根据配置选择自动化引擎，任务配置可以覆盖全局引擎
type Factory struct {
	cfg       config.AutomationConfig
	userAgent string
}

var _ contracts.SessionFactory = (*Factory)(nil)

func NewFactory(cfg config.AutomationConfig, userAgent string) *Factory {
	return &Factory{cfg: cfg, userAgent: userAgent}
}

// Engine 任务实际使用的引擎
func (f *Factory) Engine(task *entities.TaskConfig) string {
	engine := task.Automation.Engine
	if engine == "" {
		engine = f.cfg.Engine
	}
	if engine == "" {
		engine = EngineChrome
	}
	return strings.ToLower(engine)
}

func (f *Factory) Open(ctx context.Context, task *entities.TaskConfig) (contracts.Session, error) {
	timeout := task.Automation.Timeout()
	if task.Automation.TimeoutMs <= 0 && f.cfg.Timeout > 0 {
		timeout = f.cfg.Timeout
	}

	switch engine := f.Engine(task); engine {
	case EngineChrome:
		return NewChromeSession(ctx, ChromeOptions{
			ExecPath:  f.cfg.ChromePath,
			Headless:  task.Automation.Headless,
			Timeout:   timeout,
			UserAgent: f.userAgent,
		})
	case EngineStatic:
		return NewStaticSession(StaticOptions{
			Timeout:   timeout,
			UserAgent: f.userAgent,
			CloseKey:  task.Automation.Rules.WithDefaults().CloseKey,
		}), nil
	default:
		return nil, fmt.Errorf("unknown automation engine %q", engine)
	}
}
