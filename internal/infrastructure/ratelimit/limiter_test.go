package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_QPS(t *testing.T) {
	l := New(10)
	if l.QPS() != 10 {
		t.Errorf("expected QPS 10, got %d", l.QPS())
	}

	l.SetQPS(0)
	if l.QPS() != 0 {
		t.Errorf("expected unlimited after SetQPS(0), got %d", l.QPS())
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	l := New(0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("unlimited limiter should never block: %v", err)
		}
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Errorf("unlimited limiter was throttled")
	}
}

func TestLimiter_WaitCancelled(t *testing.T) {
	l := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// 第一个令牌立即可用，第二个需要等待约1秒，超时应返回错误
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("first wait failed: %v", err)
	}
	if err := l.Wait(ctx); err == nil {
		t.Fatal("expected second wait to fail on deadline")
	}
}

func TestLimiter_NilSafe(t *testing.T) {
	var l *Limiter
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("nil limiter should not block: %v", err)
	}
}
