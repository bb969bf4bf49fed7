package bridge

import (
	"context"
	"sync"
	"time"
)

// RateLimiter 出站调用节流器
// Zulip 按固定窗口计数限流，这里用最小间隔把调用摊平，
// 而不是攒满一个窗口再突发
type RateLimiter struct {
	mu       sync.Mutex
	minGap   time.Duration // 相邻两次放行的最小间隔
	nextFree time.Time     // 下一次可放行的时刻
	closed   chan struct{}
}

// NewRateLimiter 创建节流器
// ratePerSecond: 每秒允许的出站调用数
func NewRateLimiter(ratePerSecond int) *RateLimiter {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	return &RateLimiter{
		minGap: time.Second / time.Duration(ratePerSecond),
		closed: make(chan struct{}),
	}
}

// Wait 阻塞到轮到本次调用放行，或上下文取消，或节流器关闭
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	now := time.Now()
	wait := r.nextFree.Sub(now)
	if wait < 0 {
		wait = 0
		r.nextFree = now
	}
	r.nextFree = r.nextFree.Add(r.minGap)
	r.mu.Unlock()

	if wait == 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.closed:
		return context.Canceled
	case <-timer.C:
		return nil
	}
}

// Close 关闭节流器，唤醒所有等待中的调用
func (r *RateLimiter) Close() {
	select {
	case <-r.closed:
	default:
		close(r.closed)
	}
}
