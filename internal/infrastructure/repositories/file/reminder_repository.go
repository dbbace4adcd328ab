package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"guildwarden/internal/core/domain"
	"guildwarden/internal/core/ports"

	"go.uber.org/zap"
)

// FileReminderRepository persists reminders to a JSON file so scheduled
// reminders survive a restart. Same write discipline as the snapshot store.
type FileReminderRepository struct {
	path   string
	logger *zap.SugaredLogger

	mu        sync.Mutex
	reminders map[domain.ReminderID]*domain.Reminder
}

func NewFileReminderRepository(path string, logger *zap.SugaredLogger) (ports.ReminderRepository, error) {
	r := &FileReminderRepository{
		path:      path,
		logger:    logger,
		reminders: make(map[domain.ReminderID]*domain.Reminder),
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileReminderRepository) Add(ctx context.Context, reminder *domain.Reminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *reminder
	r.reminders[reminder.ID] = &copied
	return r.flush()
}

func (r *FileReminderRepository) Remove(ctx context.Context, id domain.ReminderID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.reminders[id]; !exists {
		return domain.ErrReminderNotFound
	}
	delete(r.reminders, id)
	return r.flush()
}

func (r *FileReminderRepository) ListDue(ctx context.Context, now time.Time) ([]*domain.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*domain.Reminder
	for _, reminder := range r.reminders {
		if reminder.Due(now) {
			copied := *reminder
			due = append(due, &copied)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].TriggerAt.Before(due[j].TriggerAt) })
	return due, nil
}

func (r *FileReminderRepository) All(ctx context.Context) ([]*domain.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]*domain.Reminder, 0, len(r.reminders))
	for _, reminder := range r.reminders {
		copied := *reminder
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].TriggerAt.Before(all[j].TriggerAt) })
	return all, nil
}

func (r *FileReminderRepository) load() error {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read reminder file %s: %w", r.path, err)
	}
	if len(data) == 0 {
		return nil
	}

	var stored []*domain.Reminder
	if err := json.Unmarshal(data, &stored); err != nil {
		r.logger.Errorw("reminder file is corrupt, starting empty", "path", r.path, "error", err)
		return nil
	}
	for _, reminder := range stored {
		if reminder.ID == "" {
			continue
		}
		r.reminders[reminder.ID] = reminder
	}
	return nil
}

func (r *FileReminderRepository) flush() error {
	all := make([]*domain.Reminder, 0, len(r.reminders))
	for _, reminder := range r.reminders {
		all = append(all, reminder)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].TriggerAt.Before(all[j].TriggerAt) })

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode reminders: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create reminder directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".reminders-*.json")
	if err != nil {
		return fmt.Errorf("failed to create reminder temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write reminder file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close reminder temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace reminder file: %w", err)
	}
	return nil
}
