package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"guildwarden/internal/core/domain"
	"guildwarden/internal/core/ports"
	"guildwarden/pkg/clock"
	"guildwarden/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type reminderService struct {
	reminders ports.ReminderRepository
	community ports.CommunityService
	clk       clock.Clock
	metrics   Metrics
	logger    *zap.SugaredLogger
}

func NewReminderService(
	reminders ports.ReminderRepository,
	community ports.CommunityService,
	clk clock.Clock,
	metrics Metrics,
	logger *zap.SugaredLogger,
) ports.ReminderService {
	return &reminderService{
		reminders: reminders,
		community: community,
		clk:       clk,
		metrics:   metrics,
		logger:    logger,
	}
}

func (r *reminderService) Schedule(ctx context.Context, author domain.UserID, channel domain.ChannelID, message string, in time.Duration) (*domain.Reminder, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, errors.NewInvalidInputError("reminder message is required")
	}
	if in <= 0 {
		return nil, errors.NewInvalidInputError("reminder delay must be positive")
	}

	reminder := &domain.Reminder{
		ID:        domain.ReminderID(uuid.New().String()),
		AuthorID:  author,
		ChannelID: channel,
		Message:   message,
		TriggerAt: r.clk.Now().Add(in),
	}
	if err := r.reminders.Add(ctx, reminder); err != nil {
		return nil, fmt.Errorf("failed to persist reminder: %w", err)
	}

	r.logger.Infow("reminder scheduled",
		"reminder_id", reminder.ID, "author_id", author, "trigger_at", reminder.TriggerAt)
	return reminder, nil
}

func (r *reminderService) List(ctx context.Context) ([]*domain.Reminder, error) {
	return r.reminders.All(ctx)
}

// DispatchDue posts every due reminder to its channel and removes it. A
// reminder whose delivery fails stays queued and is retried next sweep.
func (r *reminderService) DispatchDue(ctx context.Context) (int, error) {
	due, err := r.reminders.ListDue(ctx, r.clk.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to list due reminders: %w", err)
	}

	fired := 0
	for _, rem := range due {
		text := fmt.Sprintf("%s reminder: %s", mention(rem.AuthorID), rem.Message)
		if err := r.community.SendMessage(ctx, rem.ChannelID, text); err != nil {
			r.logger.Warnw("reminder delivery failed, keeping queued",
				"reminder_id", rem.ID, "channel_id", rem.ChannelID, "error", err)
			continue
		}
		if err := r.reminders.Remove(ctx, rem.ID); err != nil {
			r.logger.Errorw("failed to remove dispatched reminder",
				"reminder_id", rem.ID, "error", err)
			continue
		}
		r.metrics.ReminderDispatched()
		fired++
	}
	return fired, nil
}

// RunDispatcher sweeps for due reminders on a fixed interval until the
// context is cancelled.
func RunReminderDispatcher(ctx context.Context, svc ports.ReminderService, clk clock.Clock, interval time.Duration, logger *zap.SugaredLogger) {
	for {
		if err := clk.Sleep(ctx, interval); err != nil {
			return
		}
		if _, err := svc.DispatchDue(ctx); err != nil {
			logger.Warnw("reminder sweep failed", "error", err)
		}
	}
}
