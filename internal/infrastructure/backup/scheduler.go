package backup

import (
	"context"
	"fmt"
	"time"

	"guildwarden/internal/core/ports"
	"guildwarden/pkg/backup"

	"go.uber.org/zap"
)

// Scheduler periodically snapshots the bot's persistent content (role
// snapshots, tickets, reminders) into backup files and prunes old ones.
type Scheduler struct {
	backupService *backup.Service
	snapshots     ports.SnapshotRepository
	tickets       ports.TicketRepository
	reminders     ports.ReminderRepository
	interval      time.Duration
	retentionDays int
	logger        *zap.SugaredLogger
	stopChan      chan struct{}
}

// Config contains scheduler configuration
type Config struct {
	Interval      time.Duration
	RetentionDays int
}

// NewScheduler creates a new backup scheduler
func NewScheduler(
	backupService *backup.Service,
	snapshots ports.SnapshotRepository,
	tickets ports.TicketRepository,
	reminders ports.ReminderRepository,
	cfg Config,
	logger *zap.SugaredLogger,
) *Scheduler {
	return &Scheduler{
		backupService: backupService,
		snapshots:     snapshots,
		tickets:       tickets,
		reminders:     reminders,
		interval:      cfg.Interval,
		retentionDays: cfg.RetentionDays,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// Start starts the backup scheduler
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run initial backup
	s.runBackup(ctx)

	for {
		select {
		case <-ticker.C:
			s.runBackup(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the backup scheduler
func (s *Scheduler) Stop() {
	close(s.stopChan)
}

func (s *Scheduler) runBackup(ctx context.Context) {
	s.logger.Info("starting scheduled backup")

	backupData, err := s.collectData(ctx)
	if err != nil {
		s.logger.Errorw("failed to collect backup data", "error", err)
		return
	}

	backupName, err := s.backupService.Create(ctx, backupData)
	if err != nil {
		s.logger.Errorw("failed to create backup", "error", err)
		return
	}

	s.logger.Infow("backup created successfully", "backup_name", backupName)

	if err := s.cleanupOldBackups(ctx); err != nil {
		s.logger.Warnw("failed to cleanup old backups", "error", err)
	}
}

func (s *Scheduler) collectData(ctx context.Context) (*backup.Data, error) {
	data := &backup.Data{
		Snapshots: make(map[string][]string),
		Tickets:   make(map[string]interface{}),
		Metadata:  make(map[string]interface{}),
	}

	snapshots, err := s.snapshots.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	for userID, set := range snapshots {
		roles := make([]string, 0, set.Len())
		for _, role := range set.Sorted() {
			roles = append(roles, string(role))
		}
		data.Snapshots[string(userID)] = roles
	}

	tickets, err := s.tickets.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	for _, ticket := range tickets {
		data.Tickets[string(ticket.ID)] = ticket
	}

	reminders, err := s.reminders.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	for _, reminder := range reminders {
		data.Reminders = append(data.Reminders, reminder)
	}

	data.Metadata["snapshot_count"] = len(data.Snapshots)
	data.Metadata["ticket_count"] = len(data.Tickets)
	data.Metadata["reminder_count"] = len(data.Reminders)
	data.Metadata["backup_type"] = "scheduled"

	return data, nil
}

// cleanupOldBackups removes backups older than the retention period.
func (s *Scheduler) cleanupOldBackups(ctx context.Context) error {
	backups, err := s.backupService.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	cutoffTime := time.Now().AddDate(0, 0, -s.retentionDays)

	for _, backupName := range backups {
		// Backup names embed the timestamp: backup-20060102-150405.json.
		if len(backupName) < 22 {
			continue
		}
		timestampStr := backupName[7:22]
		timestamp, err := time.Parse("20060102-150405", timestampStr)
		if err != nil {
			s.logger.Warnw("failed to parse backup timestamp", "backup_name", backupName, "error", err)
			continue
		}

		if timestamp.Before(cutoffTime) {
			if err := s.backupService.Delete(ctx, backupName); err != nil {
				s.logger.Warnw("failed to delete old backup", "backup_name", backupName, "error", err)
				continue
			}
			s.logger.Infow("deleted old backup", "backup_name", backupName, "age", time.Since(timestamp))
		}
	}

	return nil
}
