package redis

import (
	"context"
	"fmt"

	"guildwarden/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisNotifierStateRepository struct {
	client *redis.Client
	key    string
}

func NewRedisNotifierStateRepository(client *redis.Client) ports.NotifierStateRepository {
	return &RedisNotifierStateRepository{
		client: client,
		key:    "guildwarden:notifier:seen",
	}
}

func (r *RedisNotifierStateRepository) Seen(ctx context.Context, key string) (bool, error) {
	seen, err := r.client.SIsMember(ctx, r.key, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check notifier state in Redis: %w", err)
	}
	return seen, nil
}

func (r *RedisNotifierStateRepository) MarkSeen(ctx context.Context, key string) error {
	if err := r.client.SAdd(ctx, r.key, key).Err(); err != nil {
		return fmt.Errorf("failed to mark activity seen in Redis: %w", err)
	}
	return nil
}
