package entities

import (
	"time"
)

const (
	DefaultIntervalSeconds = 300
	DefaultTimeoutMs       = 30000
)

// SelectionRules 页面元素选择规则
type SelectionRules struct {
	ItemSelector       string `json:"item_selector" mapstructure:"item_selector"`             // 列表中每张图片对应的元素
	ThumbnailAttribute string `json:"thumbnail_attribute" mapstructure:"thumbnail_attribute"` // 缩略图地址所在属性
	FullSizeSelector   string `json:"full_size_selector" mapstructure:"full_size_selector"`   // 详情视图中“查看原图”元素
	FullSizeAttribute  string `json:"full_size_attribute" mapstructure:"full_size_attribute"` // 原图地址所在属性
	CloseKey           string `json:"close_key" mapstructure:"close_key"`                     // 关闭详情视图的按键
	ScrollKey          string `json:"scroll_key" mapstructure:"scroll_key"`                   // 触发懒加载的按键
}

// WithDefaults 补全未设置的规则
func (r SelectionRules) WithDefaults() SelectionRules {
	if r.ItemSelector == "" {
		r.ItemSelector = "img"
	}
	if r.ThumbnailAttribute == "" {
		r.ThumbnailAttribute = "src"
	}
	if r.FullSizeSelector == "" {
		r.FullSizeSelector = "a[download]"
	}
	if r.FullSizeAttribute == "" {
		r.FullSizeAttribute = "href"
	}
	if r.CloseKey == "" {
		r.CloseKey = "Escape"
	}
	if r.ScrollKey == "" {
		r.ScrollKey = "End"
	}
	return r
}

// AutomationConfig 页面自动化参数
type AutomationConfig struct {
	Engine    string         `json:"engine,omitempty" mapstructure:"engine"` // 为空时使用全局配置
	Headless  bool           `json:"headless" mapstructure:"headless"`
	TimeoutMs int            `json:"timeout_ms" mapstructure:"timeout_ms"`
	Rules     SelectionRules `json:"rules" mapstructure:"rules"`
}

// Timeout 单次页面交互的超时时间
func (a AutomationConfig) Timeout() time.Duration {
	if a.TimeoutMs <= 0 {
		return DefaultTimeoutMs * time.Millisecond
	}
	return time.Duration(a.TimeoutMs) * time.Millisecond
}

// TaskConfig 监控任务配置，由外部配置存储持有，核心只读(active 标记除外)
type TaskConfig struct {
	ID              string           `json:"id" mapstructure:"id"`
	Name            string           `json:"name" mapstructure:"name"`
	TargetURL       string           `json:"target_url" mapstructure:"target_url"`
	IntervalSeconds int              `json:"interval_seconds" mapstructure:"interval_seconds"`
	Automation      AutomationConfig `json:"automation" mapstructure:"automation"`
	DestinationPath string           `json:"destination_path" mapstructure:"destination_path"`
	Active          bool             `json:"active" mapstructure:"active"`
	CreatedAt       time.Time        `json:"created_at" mapstructure:"-"`
	UpdatedAt       time.Time        `json:"updated_at" mapstructure:"-"`
}

// Interval 轮询间隔
func (c *TaskConfig) Interval() time.Duration {
	if c.IntervalSeconds <= 0 {
		return DefaultIntervalSeconds * time.Second
	}
	return time.Duration(c.IntervalSeconds) * time.Second
}
