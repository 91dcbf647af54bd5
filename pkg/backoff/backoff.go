package backoff

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Config 指数退避参数
type Config struct {
	Base   time.Duration // 第一次重试的基础延迟
	Max    time.Duration // 延迟上限
	Jitter float64       // 抖动比例，0.2 表示 ±20%
}

// DefaultConfig 默认退避参数: 1s 起步, 30s 封顶, ±20% 抖动
func DefaultConfig() Config {
	return Config{
		Base:   time.Second,
		Max:    30 * time.Second,
		Jitter: 0.2,
	}
}

// Delay 计算第 attempt 次(从1开始)重试前的等待时间
//
// 结果落在 [base*2^(n-1)*(1-jitter), min(max, base*2^(n-1)*(1+jitter))] 之间
func (c Config) Delay(attempt int) time.Duration {
	return c.delay(attempt, rand.Float64)
}

func (c Config) delay(attempt int, random func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := c.Base
	if base <= 0 {
		base = time.Second
	}

	raw := float64(base) * math.Pow(2, float64(attempt-1))
	if c.Jitter > 0 {
		raw *= 1 + (random()*2-1)*c.Jitter
	}

	if c.Max > 0 && raw > float64(c.Max) {
		return c.Max
	}
	return time.Duration(raw)
}

// Sleep 等待 d 或直到 ctx 被取消
// 返回 false 表示等待被取消打断
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
