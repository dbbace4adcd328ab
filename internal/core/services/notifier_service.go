package services

import (
	"context"
	"fmt"
	"time"

	"guildwarden/internal/core/domain"
	"guildwarden/internal/core/ports"
	"guildwarden/pkg/clock"

	"go.uber.org/zap"
)

// NotifierService polls the configured social targets and announces new
// activity once per activity key. Probe failures are logged and retried on
// the next poll; they never stop the loop.
type NotifierService struct {
	source    ports.ActivitySource
	state     ports.NotifierStateRepository
	community ports.CommunityService
	targets   []domain.NotifierTarget
	channel   domain.ChannelID
	interval  time.Duration
	clk       clock.Clock
	logger    *zap.SugaredLogger
}

func NewNotifierService(
	source ports.ActivitySource,
	state ports.NotifierStateRepository,
	community ports.CommunityService,
	targets []domain.NotifierTarget,
	channel domain.ChannelID,
	interval time.Duration,
	clk clock.Clock,
	logger *zap.SugaredLogger,
) *NotifierService {
	return &NotifierService{
		source:    source,
		state:     state,
		community: community,
		targets:   targets,
		channel:   channel,
		interval:  interval,
		clk:       clk,
		logger:    logger,
	}
}

// Run polls until the context is cancelled.
func (n *NotifierService) Run(ctx context.Context) {
	if len(n.targets) == 0 || n.channel == "" {
		n.logger.Infow("notifier disabled, no targets or channel configured")
		return
	}
	for {
		if err := n.clk.Sleep(ctx, n.interval); err != nil {
			return
		}
		n.Poll(ctx)
	}
}

// Poll probes every target once and announces unseen activities.
func (n *NotifierService) Poll(ctx context.Context) int {
	announced := 0
	for _, target := range n.targets {
		activities, err := n.source.Fetch(ctx, target)
		if err != nil {
			n.logger.Warnw("activity probe failed",
				"platform", target.Platform, "url", target.URL, "error", err)
			continue
		}
		for i := range activities {
			if n.announce(ctx, &activities[i]) {
				announced++
			}
		}
	}
	return announced
}

func (n *NotifierService) announce(ctx context.Context, activity *domain.Activity) bool {
	seen, err := n.state.Seen(ctx, activity.Key())
	if err != nil {
		n.logger.Warnw("notifier state read failed", "key", activity.Key(), "error", err)
		return false
	}
	if seen {
		return false
	}

	text := fmt.Sprintf("%s is live: %s\n%s", activity.Target.Platform, activity.Title, activity.URL)
	if activity.Target.RoleID != "" {
		text = "<@&" + string(activity.Target.RoleID) + "> " + text
	}
	if err := n.community.SendMessage(ctx, n.channel, text); err != nil {
		n.logger.Warnw("activity announcement failed", "key", activity.Key(), "error", err)
		return false
	}

	if err := n.state.MarkSeen(ctx, activity.Key()); err != nil {
		n.logger.Errorw("failed to mark activity as seen", "key", activity.Key(), "error", err)
	}
	n.logger.Infow("activity announced", "platform", activity.Target.Platform, "url", activity.URL)
	return true
}
