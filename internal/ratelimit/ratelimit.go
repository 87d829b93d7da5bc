// Package ratelimit caps how often an account may attempt actions, before any
// ledger work happens. The limit protects the pipeline from request floods; it
// is not part of the economy rules.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter reports whether the key may proceed right now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Redis is a fixed-window limiter: INCR the window key, set the TTL on first
// hit, deny once the count exceeds the cap.
type Redis struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

func NewRedis(client *redis.Client, prefix string, limit int64, window time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, limit: limit, window: window}
}

func (l *Redis) Allow(ctx context.Context, key string) (bool, error) {
	k := l.prefix + ":" + key
	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return false, fmt.Errorf("rate limit expire: %w", err)
		}
	}
	return count <= l.limit, nil
}

// Memory is an in-process fixed-window limiter for tests and single-node
// deployments.
type Memory struct {
	mu      sync.Mutex
	counts  map[string]int64
	starts  map[string]time.Time
	limit   int64
	window  time.Duration
	nowFunc func() time.Time
}

func NewMemory(limit int64, window time.Duration) *Memory {
	return &Memory{
		counts:  map[string]int64{},
		starts:  map[string]time.Time{},
		limit:   limit,
		window:  window,
		nowFunc: time.Now,
	}
}

func (l *Memory) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.nowFunc()
	if start, ok := l.starts[key]; !ok || now.Sub(start) >= l.window {
		l.starts[key] = now
		l.counts[key] = 0
	}
	l.counts[key]++
	return l.counts[key] <= l.limit, nil
}
