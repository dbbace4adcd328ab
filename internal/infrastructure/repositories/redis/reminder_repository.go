package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"guildwarden/internal/core/domain"
	"guildwarden/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisReminderRepository keeps reminder bodies in plain keys and a sorted
// set scored by trigger time, so ListDue is a single range query.
type RedisReminderRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisReminderRepository(client *redis.Client) ports.ReminderRepository {
	return &RedisReminderRepository{
		client: client,
		prefix: "guildwarden:reminder:",
	}
}

func (r *RedisReminderRepository) reminderKey(id domain.ReminderID) string {
	return r.prefix + string(id)
}

func (r *RedisReminderRepository) scheduleKey() string {
	return r.prefix + "schedule"
}

func (r *RedisReminderRepository) Add(ctx context.Context, reminder *domain.Reminder) error {
	data, err := json.Marshal(reminder)
	if err != nil {
		return fmt.Errorf("failed to marshal reminder: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.reminderKey(reminder.ID), data, 0)
	pipe.ZAdd(ctx, r.scheduleKey(), redis.Z{
		Score:  float64(reminder.TriggerAt.UnixMilli()),
		Member: string(reminder.ID),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add reminder to Redis: %w", err)
	}
	return nil
}

func (r *RedisReminderRepository) Remove(ctx context.Context, id domain.ReminderID) error {
	removed, err := r.client.ZRem(ctx, r.scheduleKey(), string(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to remove reminder from schedule: %w", err)
	}
	if removed == 0 {
		return domain.ErrReminderNotFound
	}
	if err := r.client.Del(ctx, r.reminderKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete reminder from Redis: %w", err)
	}
	return nil
}

func (r *RedisReminderRepository) ListDue(ctx context.Context, now time.Time) ([]*domain.Reminder, error) {
	ids, err := r.client.ZRangeByScore(ctx, r.scheduleKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.UnixMilli()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query due reminders: %w", err)
	}
	return r.fetch(ctx, ids)
}

func (r *RedisReminderRepository) All(ctx context.Context) ([]*domain.Reminder, error) {
	ids, err := r.client.ZRange(ctx, r.scheduleKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders from Redis: %w", err)
	}
	return r.fetch(ctx, ids)
}

func (r *RedisReminderRepository) fetch(ctx context.Context, ids []string) ([]*domain.Reminder, error) {
	var reminders []*domain.Reminder
	for _, id := range ids {
		data, err := r.client.Get(ctx, r.reminderKey(domain.ReminderID(id))).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get reminder from Redis: %w", err)
		}
		var reminder domain.Reminder
		if err := json.Unmarshal([]byte(data), &reminder); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reminder: %w", err)
		}
		reminders = append(reminders, &reminder)
	}
	return reminders, nil
}
