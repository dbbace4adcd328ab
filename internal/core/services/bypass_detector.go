package services

import (
	"context"

	"guildwarden/internal/core/domain"
	"guildwarden/internal/core/ports"
	"guildwarden/pkg/clock"

	"go.uber.org/zap"
)

// bypassDetector inspects the recent role-change audit trail to distinguish
// a deliberate staff action from the automated freeze contest. It must run
// before the enforcer on every role-change event.
type bypassDetector struct {
	community ports.CommunityService
	bypass    ports.BypassRegistry
	settings  FreezeSettings
	clk       clock.Clock
	metrics   Metrics
	logger    *zap.SugaredLogger
}

func NewBypassDetector(
	community ports.CommunityService,
	bypass ports.BypassRegistry,
	settings FreezeSettings,
	clk clock.Clock,
	metrics Metrics,
	logger *zap.SugaredLogger,
) ports.BypassDetector {
	return &bypassDetector{
		community: community,
		bypass:    bypass,
		settings:  settings,
		clk:       clk,
		metrics:   metrics,
		logger:    logger,
	}
}

// CheckAndMaybeBypass grants a time-limited bypass and returns true when a
// recent audit entry shows a human with role-management capability acting
// on this member. When the audit trail is unreachable it fails closed: no
// bypass, freeze proceeds.
func (d *bypassDetector) CheckAndMaybeBypass(ctx context.Context, member *domain.Member) bool {
	entries, err := d.community.RecentRoleChangeAudit(ctx, d.settings.AuditLookback)
	if err != nil {
		d.logger.Warnw("audit log unreadable, failing closed", "user_id", member.ID, "error", err)
		return false
	}

	now := d.clk.Now()
	for _, entry := range entries {
		if entry.TargetUser != member.ID {
			continue
		}
		if !entry.IsRecent(now, d.settings.AuditRecency) {
			continue
		}
		if entry.Actor == d.settings.BotUserID {
			// Our own enforcement shows up in the audit trail too.
			continue
		}
		if !entry.ActorCanManageRoles && !entry.ActorIsAdmin {
			continue
		}

		d.bypass.Grant(member.ID, d.settings.StaffBypassTTL)
		d.metrics.BypassGranted()
		d.logger.Infow("staff action detected, freeze bypassed",
			"user_id", member.ID, "actor", entry.Actor, "ttl", d.settings.StaffBypassTTL)
		return true
	}

	return false
}
