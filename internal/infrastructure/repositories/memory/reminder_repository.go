package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"guildwarden/internal/core/domain"
	"guildwarden/internal/core/ports"
)

type MemoryReminderRepository struct {
	reminders map[domain.ReminderID]*domain.Reminder
	mu        sync.RWMutex
}

func NewMemoryReminderRepository() ports.ReminderRepository {
	return &MemoryReminderRepository{
		reminders: make(map[domain.ReminderID]*domain.Reminder),
	}
}

func (r *MemoryReminderRepository) Add(ctx context.Context, reminder *domain.Reminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *reminder
	r.reminders[reminder.ID] = &copied
	return nil
}

func (r *MemoryReminderRepository) Remove(ctx context.Context, id domain.ReminderID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.reminders[id]; !exists {
		return domain.ErrReminderNotFound
	}

	delete(r.reminders, id)
	return nil
}

func (r *MemoryReminderRepository) ListDue(ctx context.Context, now time.Time) ([]*domain.Reminder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var due []*domain.Reminder
	for _, reminder := range r.reminders {
		if reminder.Due(now) {
			copied := *reminder
			due = append(due, &copied)
		}
	}
	sortReminders(due)
	return due, nil
}

func (r *MemoryReminderRepository) All(ctx context.Context) ([]*domain.Reminder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*domain.Reminder, 0, len(r.reminders))
	for _, reminder := range r.reminders {
		copied := *reminder
		all = append(all, &copied)
	}
	sortReminders(all)
	return all, nil
}

func sortReminders(reminders []*domain.Reminder) {
	sort.Slice(reminders, func(i, j int) bool {
		return reminders[i].TriggerAt.Before(reminders[j].TriggerAt)
	})
}
