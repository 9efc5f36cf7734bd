package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"chapter-hub/internal/domain"
	"chapter-hub/internal/infra/metrics"
)

const claimPrefix = "notify:claim:"

// RedisCache реализует захват напоминаний через Redis SETNX.
type RedisCache struct {
	client *redis.Client
}

var _ domain.NotificationClaimer = (*RedisCache)(nil)

// NewRedis создаёт кэш.
func NewRedis(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Connect создаёт клиента Redis и проверяет соединение.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Claim захватывает запись на ttl. Повторный захват до истечения ttl возвращает false.
func (c *RedisCache) Claim(ctx context.Context, notificationID string, ttl time.Duration) (bool, error) {
	start := time.Now()
	ok, err := c.client.SetNX(ctx, claimPrefix+notificationID, "1", ttl).Result()
	metrics.ObserveNetworkRequest("redis", "claim", "notifications", start, err)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Release снимает захват, чтобы запись могла быть обработана в следующем проходе.
func (c *RedisCache) Release(ctx context.Context, notificationID string) error {
	start := time.Now()
	err := c.client.Del(ctx, claimPrefix+notificationID).Err()
	metrics.ObserveNetworkRequest("redis", "release", "notifications", start, err)
	return err
}
