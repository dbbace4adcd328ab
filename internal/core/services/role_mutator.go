package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"guildwarden/internal/core/domain"
	"guildwarden/internal/core/ports"
	"guildwarden/pkg/clock"

	"go.uber.org/zap"
)

// roleMutator applies role batches against the platform with a fixed delay
// between consecutive calls and one retry on transient failure. Shared by
// the enforcer, the supervisor and the restoration path.
type roleMutator struct {
	community ports.CommunityService
	clk       clock.Clock
	delay     time.Duration
	logger    *zap.SugaredLogger
}

func newRoleMutator(community ports.CommunityService, clk clock.Clock, delay time.Duration, logger *zap.SugaredLogger) *roleMutator {
	return &roleMutator{community: community, clk: clk, delay: delay, logger: logger}
}

// removeBatch removes roles one at a time. Per-role failures are logged and
// reported to the staff channel but never abort the rest of the batch.
// Returns how many roles were removed.
func (m *roleMutator) removeBatch(ctx context.Context, userID domain.UserID, batch []domain.RoleID, reason string) int {
	return m.applyBatch(ctx, userID, batch, reason, m.community.RemoveRoles, "removal")
}

// addBatch adds roles one at a time with the same throttle/retry policy.
func (m *roleMutator) addBatch(ctx context.Context, userID domain.UserID, batch []domain.RoleID, reason string) int {
	return m.applyBatch(ctx, userID, batch, reason, m.community.AddRoles, "re-add")
}

type mutateFunc func(ctx context.Context, userID domain.UserID, roles []domain.RoleID, reason string) ([]ports.RoleResult, error)

func (m *roleMutator) applyBatch(ctx context.Context, userID domain.UserID, batch []domain.RoleID, reason string, mutate mutateFunc, op string) int {
	applied := 0
	for i, role := range batch {
		if i > 0 {
			if err := m.clk.Sleep(ctx, m.delay); err != nil {
				return applied
			}
		}
		if err := m.applyOne(ctx, userID, role, reason, mutate); err != nil {
			m.logger.Warnw("role mutation failed this tick",
				"user_id", userID, "role_id", role, "op", op, "error", err)
			m.community.StaffLog(ctx, "role "+op+" failed",
				fmt.Sprintf("user %s, role %s: %v (will retry next tick)", userID, role, err))
			continue
		}
		applied++
	}
	return applied
}

// applyOne attempts one role mutation with a single retry after a short
// backoff on transient failure. Permission denials are not retried within a
// tick; state is unchanged so the next tick tries again.
func (m *roleMutator) applyOne(ctx context.Context, userID domain.UserID, role domain.RoleID, reason string, mutate mutateFunc) error {
	err := m.tryOnce(ctx, userID, role, reason, mutate)
	if err == nil || !errors.Is(err, domain.ErrTransientService) {
		return err
	}
	if serr := m.clk.Sleep(ctx, m.delay); serr != nil {
		return err
	}
	return m.tryOnce(ctx, userID, role, reason, mutate)
}

func (m *roleMutator) tryOnce(ctx context.Context, userID domain.UserID, role domain.RoleID, reason string, mutate mutateFunc) error {
	results, err := mutate(ctx, userID, []domain.RoleID{role}, reason)
	if err != nil {
		return err
	}
	for _, res := range results {
		if res.Err != nil {
			return res.Err
		}
	}
	return nil
}
