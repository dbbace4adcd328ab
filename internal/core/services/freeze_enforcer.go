package services

import (
	"context"

	"guildwarden/internal/core/domain"
	"guildwarden/internal/core/ports"
	"guildwarden/pkg/clock"

	"go.uber.org/zap"
)

const freezeReason = "age verification freeze"

// freezeEnforcer is the instant, synchronous reaction to a detected role
// change on an unverified member. It snapshots before it removes, so a
// failed removal never loses the record of what should eventually go.
type freezeEnforcer struct {
	community ports.CommunityService
	snapshots ports.SnapshotRepository
	bypass    ports.BypassRegistry
	settings  FreezeSettings
	mutator   *roleMutator
	metrics   Metrics
	logger    *zap.SugaredLogger
}

func NewFreezeEnforcer(
	community ports.CommunityService,
	snapshots ports.SnapshotRepository,
	bypass ports.BypassRegistry,
	settings FreezeSettings,
	clk clock.Clock,
	metrics Metrics,
	logger *zap.SugaredLogger,
) ports.FreezeEnforcer {
	return &freezeEnforcer{
		community: community,
		snapshots: snapshots,
		bypass:    bypass,
		settings:  settings,
		mutator:   newRoleMutator(community, clk, settings.MutationDelay, logger),
		metrics:   metrics,
		logger:    logger,
	}
}

// Enforce is idempotent and safe to call on every role-change notification.
// Errors in individual role mutations are logged and never abort the batch.
func (e *freezeEnforcer) Enforce(ctx context.Context, member *domain.Member) {
	if member == nil {
		return
	}
	if e.bypass.IsActive(member.ID) {
		return
	}
	if member.HasRole(e.settings.Markers.Verified) {
		return
	}

	// Re-apply the unverified marker; permission failures are reported,
	// not fatal.
	if !member.HasRole(e.settings.Markers.Unverified) {
		results, err := e.community.AddRoles(ctx, member.ID, []domain.RoleID{e.settings.Markers.Unverified}, freezeReason)
		if err != nil {
			e.logger.Warnw("failed to re-apply unverified marker", "user_id", member.ID, "error", err)
		}
		for _, res := range results {
			if res.Err != nil {
				e.logger.Warnw("unverified marker refused", "user_id", member.ID, "role_id", res.Role, "error", res.Err)
			}
		}
	}

	active := member.ActiveRoles(e.settings.Markers)
	if active.Len() == 0 {
		return
	}

	// Snapshot persists before any mutation is attempted.
	if err := e.snapshots.Union(ctx, member.ID, active); err != nil {
		e.logger.Errorw("failed to persist role snapshot", "user_id", member.ID, "error", err)
		return
	}

	batch := active.Sorted()
	if len(batch) > e.settings.MaxBatchRemove {
		batch = batch[:e.settings.MaxBatchRemove]
	}

	removed := e.mutator.removeBatch(ctx, member.ID, batch, freezeReason)
	if removed > 0 {
		e.metrics.RolesFrozen(removed)
		e.logger.Infow("froze roles", "user_id", member.ID, "removed", removed, "active", active.Len())
	}
}
