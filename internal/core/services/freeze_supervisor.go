package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"guildwarden/internal/core/domain"
	"guildwarden/internal/core/ports"
	"guildwarden/pkg/clock"

	"go.uber.org/zap"
)

// FreezeSupervisor is the long-lived per-user debounce task spawned when a
// not-yet-verified member joins. It re-observes the member every tick and
// decides when to batch-remove roles versus wait.
//
// States: ACCUMULATING -> QUIET_WAIT -> REMOVING (loops) -> TERMINATED.
// Exit conditions are checked at the top of every tick, before any state
// transition, so a bypass or verification detected mid-accumulation aborts
// immediately rather than waiting out the window.
type FreezeSupervisor struct {
	userID    domain.UserID
	community ports.CommunityService
	snapshots ports.SnapshotRepository
	bypass    ports.BypassRegistry
	skipSet   ports.SkipSet
	kickedSet ports.SkipSet
	settings  FreezeSettings
	mutator   *roleMutator
	clk       clock.Clock
	metrics   Metrics
	logger    *zap.SugaredLogger

	mu         sync.Mutex
	phase      domain.SupervisorPhase
	ticks      int
	lastActive domain.RoleSet
}

func NewFreezeSupervisor(
	userID domain.UserID,
	community ports.CommunityService,
	snapshots ports.SnapshotRepository,
	bypass ports.BypassRegistry,
	skipSet ports.SkipSet,
	kickedSet ports.SkipSet,
	settings FreezeSettings,
	clk clock.Clock,
	metrics Metrics,
	logger *zap.SugaredLogger,
) *FreezeSupervisor {
	return &FreezeSupervisor{
		userID:     userID,
		community:  community,
		snapshots:  snapshots,
		bypass:     bypass,
		skipSet:    skipSet,
		kickedSet:  kickedSet,
		settings:   settings,
		mutator:    newRoleMutator(community, clk, settings.MutationDelay, logger),
		clk:        clk,
		metrics:    metrics,
		logger:     logger,
		phase:      domain.PhaseAccumulating,
		lastActive: domain.NewRoleSet(),
	}
}

// Status returns a point-in-time view for the admin API.
func (s *FreezeSupervisor) Status() domain.SupervisorStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.SupervisorStatus{
		UserID:      s.userID,
		Phase:       s.phase,
		ActiveRoles: s.lastActive.Len(),
		Ticks:       s.ticks,
	}
}

// Run drives the state machine until an exit condition fires. It is meant
// to be launched as its own goroutine; it never returns an error because no
// failure inside one member's tick may affect any other task.
func (s *FreezeSupervisor) Run(ctx context.Context) domain.ExitReason {
	s.metrics.SupervisorStarted()

	reason := s.run(ctx)

	s.mu.Lock()
	s.phase = domain.PhaseTerminated
	s.mu.Unlock()

	// Transient flags are cleared so a future rejoin starts clean.
	s.skipSet.Remove(s.userID)
	s.kickedSet.Remove(s.userID)

	s.metrics.SupervisorExited(reason)
	s.logger.Infow("freeze supervisor exited", "user_id", s.userID, "reason", reason)
	if reason != domain.ExitShutdown {
		s.community.StaffLog(ctx, "freeze supervisor finished",
			fmt.Sprintf("user %s: %s", s.userID, reason))
	}
	return reason
}

func (s *FreezeSupervisor) run(ctx context.Context) domain.ExitReason {
	// Let join-time role grants from other automations settle before the
	// accumulate window opens.
	if err := s.clk.Sleep(ctx, s.settings.StartDelay); err != nil {
		return domain.ExitShutdown
	}

	windowStart := s.clk.Now()
	lastChange := s.clk.Now()

	for {
		if err := s.clk.Sleep(ctx, s.settings.TickInterval); err != nil {
			return domain.ExitShutdown
		}
		s.mu.Lock()
		s.ticks++
		s.mu.Unlock()

		// Exit checks, highest priority first.
		if s.kickedSet.Contains(s.userID) {
			return domain.ExitKickedForAge
		}
		if s.skipSet.Contains(s.userID) {
			return domain.ExitSelfVerified
		}

		member, err := s.community.GetMember(ctx, s.userID)
		if errors.Is(err, domain.ErrMemberGone) {
			return domain.ExitLeft
		}
		if err != nil {
			// Transient fetch failure: skip this tick, state unchanged.
			s.logger.Debugw("member fetch failed, retrying next tick", "user_id", s.userID, "error", err)
			continue
		}

		if member.HasRole(s.settings.Markers.Verified) {
			return domain.ExitVerified
		}
		if s.bypass.IsActive(s.userID) {
			return domain.ExitBypassed
		}

		active := member.ActiveRoles(s.settings.Markers)
		s.mu.Lock()
		if !active.Equal(s.lastActive) {
			s.lastActive = active
			lastChange = s.clk.Now()
		}
		phase := s.phase
		s.mu.Unlock()

		switch phase {
		case domain.PhaseAccumulating:
			// Absorb the burst of join-time role grants; no removal yet.
			if s.clk.Now().Sub(windowStart) >= s.settings.AccumulateWindow {
				s.setPhase(domain.PhaseQuietWait)
			}

		case domain.PhaseQuietWait:
			// Something may still be actively mutating roles; wait for the
			// gap to elapse with no further change before removing.
			if s.clk.Now().Sub(lastChange) >= s.settings.QuietGap {
				s.setPhase(domain.PhaseRemoving)
			}

		case domain.PhaseRemoving:
			if active.Len() > 0 {
				s.removePass(ctx, active)
			}
			// Stay in REMOVING: more roles may still appear; the next tick
			// re-checks exit conditions and removes again.
		}
	}
}

func (s *FreezeSupervisor) setPhase(p domain.SupervisorPhase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

// removePass unions the active roles into the snapshot, then removes up to
// MaxBatchRemove of them. Anything left over is picked up next pass.
func (s *FreezeSupervisor) removePass(ctx context.Context, active domain.RoleSet) {
	if err := s.snapshots.Union(ctx, s.userID, active); err != nil {
		s.logger.Errorw("failed to persist role snapshot", "user_id", s.userID, "error", err)
		return
	}

	batch := active.Sorted()
	if len(batch) > s.settings.MaxBatchRemove {
		batch = batch[:s.settings.MaxBatchRemove]
	}

	removed := s.mutator.removeBatch(ctx, s.userID, batch, freezeReason)
	if removed > 0 {
		s.metrics.RolesFrozen(removed)
		s.logger.Infow("supervisor removed roles", "user_id", s.userID, "removed", removed)
	}
}

// SupervisorRegistry tracks the live supervisor per user and enforces the
// single-active-instance invariant: a second join while one is running is
// rejected rather than spawning a duplicate.
type SupervisorRegistry struct {
	mu          sync.Mutex
	supervisors map[domain.UserID]*FreezeSupervisor
	wg          sync.WaitGroup
}

func NewSupervisorRegistry() *SupervisorRegistry {
	return &SupervisorRegistry{
		supervisors: make(map[domain.UserID]*FreezeSupervisor),
	}
}

// Spawn registers and launches the supervisor. Returns
// domain.ErrSupervisorActive if one is already running for the user.
func (r *SupervisorRegistry) Spawn(ctx context.Context, sup *FreezeSupervisor) error {
	r.mu.Lock()
	if _, exists := r.supervisors[sup.userID]; exists {
		r.mu.Unlock()
		return domain.ErrSupervisorActive
	}
	r.supervisors[sup.userID] = sup
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.supervisors, sup.userID)
			r.mu.Unlock()
		}()
		sup.Run(ctx)
	}()

	return nil
}

// Active reports whether a supervisor is currently running for the user.
func (r *SupervisorRegistry) Active(userID domain.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.supervisors[userID]
	return ok
}

// Statuses returns a snapshot of all running supervisors.
func (r *SupervisorRegistry) Statuses() []domain.SupervisorStatus {
	r.mu.Lock()
	sups := make([]*FreezeSupervisor, 0, len(r.supervisors))
	for _, s := range r.supervisors {
		sups = append(sups, s)
	}
	r.mu.Unlock()

	out := make([]domain.SupervisorStatus, 0, len(sups))
	for _, s := range sups {
		out = append(out, s.Status())
	}
	return out
}

// Wait blocks until all supervisors have exited; used on shutdown after the
// shared context is cancelled.
func (r *SupervisorRegistry) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
