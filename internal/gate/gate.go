// Package gate provides single-flight locks for the pricing cycle so that
// concurrent triggers for the same community collapse into one run.
package gate

import (
	"context"
	"sync"
	"time"
)

// Gate hands out at most one lease per key at a time. A lease expires on its
// own after ttl so a crashed holder cannot wedge the key forever.
type Gate interface {
	// TryAcquire returns true when the caller now holds the key. It never
	// blocks waiting for the current holder.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Memory is an in-process Gate for tests and single-node deployments.
type Memory struct {
	mu     sync.Mutex
	leases map[string]time.Time
	now    func() time.Time
}

func NewMemory() *Memory {
	return &Memory{leases: map[string]time.Time{}, now: time.Now}
}

func (g *Memory) TryAcquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if exp, ok := g.leases[key]; ok && exp.After(now) {
		return false, nil
	}
	g.leases[key] = now.Add(ttl)
	return true, nil
}

func (g *Memory) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.leases, key)
	return nil
}
