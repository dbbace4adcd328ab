package redis

import (
	"context"
	"fmt"

	"guildwarden/internal/core/domain"
	"guildwarden/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisSnapshotRepository stores each user's snapshot as a Redis set. SADD is
// a natural union, so the snapshot can only grow until DEL; concurrent
// writers cannot shrink it.
type RedisSnapshotRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisSnapshotRepository(client *redis.Client) ports.SnapshotRepository {
	return &RedisSnapshotRepository{
		client: client,
		prefix: "guildwarden:snapshot:",
	}
}

func (r *RedisSnapshotRepository) snapshotKey(userID domain.UserID) string {
	return r.prefix + string(userID)
}

func (r *RedisSnapshotRepository) indexKey() string {
	return r.prefix + "users"
}

func (r *RedisSnapshotRepository) Get(ctx context.Context, userID domain.UserID) (domain.RoleSet, error) {
	roles, err := r.client.SMembers(ctx, r.snapshotKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot from Redis: %w", err)
	}
	if len(roles) == 0 {
		return nil, domain.ErrSnapshotNotFound
	}

	set := domain.NewRoleSet()
	for _, role := range roles {
		set.Add(domain.RoleID(role))
	}
	return set, nil
}

func (r *RedisSnapshotRepository) Union(ctx context.Context, userID domain.UserID, roles domain.RoleSet) error {
	if roles.Len() == 0 {
		return nil
	}

	members := make([]interface{}, 0, roles.Len())
	for _, role := range roles.Sorted() {
		members = append(members, string(role))
	}

	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, r.snapshotKey(userID), members...)
	pipe.SAdd(ctx, r.indexKey(), string(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to union snapshot in Redis: %w", err)
	}
	return nil
}

func (r *RedisSnapshotRepository) Clear(ctx context.Context, userID domain.UserID) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.snapshotKey(userID))
	pipe.SRem(ctx, r.indexKey(), string(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear snapshot in Redis: %w", err)
	}
	return nil
}

func (r *RedisSnapshotRepository) All(ctx context.Context) (map[domain.UserID]domain.RoleSet, error) {
	users, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot users from Redis: %w", err)
	}

	out := make(map[domain.UserID]domain.RoleSet, len(users))
	for _, user := range users {
		set, err := r.Get(ctx, domain.UserID(user))
		if err == domain.ErrSnapshotNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[domain.UserID(user)] = set
	}
	return out, nil
}
