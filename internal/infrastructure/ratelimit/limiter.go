package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter 令牌桶 QPS 限制，供 Alist 客户端和资源下载共用
type Limiter struct {
	limiter *rate.Limiter
}

// New 创建限制器，qps<=0 表示不限制
func New(qps int) *Limiter {
	l := &Limiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	l.SetQPS(qps)
	return l
}

// Wait 阻塞直到拿到令牌或 ctx 结束
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// SetQPS 动态调整限制，桶大小等于QPS以允许短时突发
func (l *Limiter) SetQPS(qps int) {
	if qps <= 0 {
		l.limiter.SetLimit(rate.Inf)
		l.limiter.SetBurst(1)
		return
	}
	l.limiter.SetLimit(rate.Limit(qps))
	l.limiter.SetBurst(qps)
}

// QPS 当前限制，0 表示不限制
func (l *Limiter) QPS() int {
	limit := l.limiter.Limit()
	if limit == rate.Inf {
		return 0
	}
	return int(limit)
}
