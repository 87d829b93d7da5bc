package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Gate shared across instances. A lease is a plain SET NX key with
// a TTL; Release deletes it.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (g *Redis) key(key string) string { return g.prefix + ":" + key }

func (g *Redis) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.key(key), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire gate %s: %w", key, err)
	}
	return ok, nil
}

func (g *Redis) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, g.key(key)).Err(); err != nil {
		return fmt.Errorf("release gate %s: %w", key, err)
	}
	return nil
}
