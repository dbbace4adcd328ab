package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"guildwarden/internal/core/domain"
	"guildwarden/internal/core/ports"
	"guildwarden/pkg/backup"

	"go.uber.org/zap"
)

// RestoreService loads a backup file back into the live repositories.
type RestoreService struct {
	backupService *backup.Service
	snapshots     ports.SnapshotRepository
	tickets       ports.TicketRepository
	reminders     ports.ReminderRepository
	logger        *zap.SugaredLogger
}

func NewRestoreService(
	backupService *backup.Service,
	snapshots ports.SnapshotRepository,
	tickets ports.TicketRepository,
	reminders ports.ReminderRepository,
	logger *zap.SugaredLogger,
) *RestoreService {
	return &RestoreService{
		backupService: backupService,
		snapshots:     snapshots,
		tickets:       tickets,
		reminders:     reminders,
		logger:        logger,
	}
}

// RestoreOptions contains restore options
type RestoreOptions struct {
	OverwriteExisting bool
	RestoreSnapshots  bool
	RestoreTickets    bool
	RestoreReminders  bool
}

// DefaultRestoreOptions returns default restore options
func DefaultRestoreOptions() RestoreOptions {
	return RestoreOptions{
		OverwriteExisting: false,
		RestoreSnapshots:  true,
		RestoreTickets:    true,
		RestoreReminders:  true,
	}
}

// RestoreFromBackup restores data from a specific backup
func (rs *RestoreService) RestoreFromBackup(ctx context.Context, backupName string, options RestoreOptions) error {
	rs.logger.Infow("starting restore", "backup_name", backupName, "options", options)

	backupData, err := rs.backupService.Restore(ctx, backupName)
	if err != nil {
		return fmt.Errorf("failed to load backup: %w", err)
	}

	if backupData.Version == "" {
		return fmt.Errorf("invalid backup: missing version")
	}

	if err := rs.restoreSnapshots(ctx, backupData.Snapshots, options); err != nil {
		return fmt.Errorf("failed to restore snapshots: %w", err)
	}
	if err := rs.restoreTickets(ctx, backupData.Tickets, options); err != nil {
		return fmt.Errorf("failed to restore tickets: %w", err)
	}
	if err := rs.restoreReminders(ctx, backupData.Reminders, options); err != nil {
		return fmt.Errorf("failed to restore reminders: %w", err)
	}

	rs.logger.Infow("restore completed successfully", "backup_name", backupName)
	return nil
}

func (rs *RestoreService) restoreSnapshots(ctx context.Context, snapshots map[string][]string, options RestoreOptions) error {
	if !options.RestoreSnapshots {
		return nil
	}

	for userIDStr, roles := range snapshots {
		userID := domain.UserID(userIDStr)

		if !options.OverwriteExisting {
			if _, err := rs.snapshots.Get(ctx, userID); err == nil {
				rs.logger.Debugw("skipping existing snapshot", "user_id", userID)
				continue
			}
		}

		set := domain.NewRoleSet()
		for _, role := range roles {
			set.Add(domain.RoleID(role))
		}
		// Union only grows the stored set, so restoring on top of live
		// data can never lose roles captured since the backup.
		if err := rs.snapshots.Union(ctx, userID, set); err != nil {
			return fmt.Errorf("failed to restore snapshot for %s: %w", userID, err)
		}
		rs.logger.Debugw("restored snapshot", "user_id", userID, "roles", set.Len())
	}
	return nil
}

func (rs *RestoreService) restoreTickets(ctx context.Context, tickets map[string]interface{}, options RestoreOptions) error {
	if !options.RestoreTickets {
		return nil
	}

	for ticketIDStr, ticketData := range tickets {
		ticketID := domain.TicketID(ticketIDStr)

		existing, err := rs.tickets.GetByID(ctx, ticketID)
		if err != nil && !errors.Is(err, domain.ErrTicketNotFound) {
			return err
		}
		if existing != nil && !options.OverwriteExisting {
			rs.logger.Debugw("skipping existing ticket", "ticket_id", ticketID)
			continue
		}

		ticketJSON, err := json.Marshal(ticketData)
		if err != nil {
			return fmt.Errorf("failed to marshal ticket: %w", err)
		}
		var ticket domain.Ticket
		if err := json.Unmarshal(ticketJSON, &ticket); err != nil {
			return fmt.Errorf("failed to unmarshal ticket: %w", err)
		}

		if existing == nil {
			err = rs.tickets.Create(ctx, &ticket)
		} else {
			err = rs.tickets.Update(ctx, &ticket)
		}
		if err != nil {
			return fmt.Errorf("failed to restore ticket %s: %w", ticketID, err)
		}
		rs.logger.Debugw("restored ticket", "ticket_id", ticketID)
	}
	return nil
}

func (rs *RestoreService) restoreReminders(ctx context.Context, reminders []interface{}, options RestoreOptions) error {
	if !options.RestoreReminders {
		return nil
	}

	for _, reminderData := range reminders {
		reminderJSON, err := json.Marshal(reminderData)
		if err != nil {
			return fmt.Errorf("failed to marshal reminder: %w", err)
		}
		var reminder domain.Reminder
		if err := json.Unmarshal(reminderJSON, &reminder); err != nil {
			return fmt.Errorf("failed to unmarshal reminder: %w", err)
		}
		if reminder.ID == "" {
			continue
		}

		if err := rs.reminders.Add(ctx, &reminder); err != nil {
			return fmt.Errorf("failed to restore reminder %s: %w", reminder.ID, err)
		}
		rs.logger.Debugw("restored reminder", "reminder_id", reminder.ID)
	}
	return nil
}

// FindBackupByTime finds the closest backup at or before a given time.
func (rs *RestoreService) FindBackupByTime(ctx context.Context, targetTime time.Time) (string, error) {
	backups, err := rs.backupService.List(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list backups: %w", err)
	}

	var closestBackup string
	var closestTime time.Time
	var found bool

	for _, backupName := range backups {
		if len(backupName) < 22 {
			continue
		}
		timestampStr := backupName[7:22]
		timestamp, err := time.Parse("20060102-150405", timestampStr)
		if err != nil {
			continue
		}

		if !timestamp.After(targetTime) {
			if !found || timestamp.After(closestTime) {
				closestBackup = backupName
				closestTime = timestamp
				found = true
			}
		}
	}

	if !found {
		return "", fmt.Errorf("no backup found before or at target time: %v", targetTime)
	}
	return closestBackup, nil
}
