package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"guildwarden/internal/core/domain"
	"guildwarden/internal/core/ports"
	"guildwarden/pkg/clock"
	"guildwarden/pkg/utils"

	"go.uber.org/zap"
)

const (
	verifyReason  = "verification complete"
	restoreReason = "restoring roles after verification"
	ageKickReason = "under minimum age"
)

// EventSink receives notable lifecycle events (member join/leave/verified).
// The dashboard bridge implements it; failures are swallowed downstream.
type EventSink interface {
	PushEvent(ctx context.Context, event string, payload map[string]interface{})
}

// NopEventSink discards events.
type NopEventSink struct{}

func (NopEventSink) PushEvent(context.Context, string, map[string]interface{}) {}

// VerificationConfig is the non-freeze part of the verification flow.
type VerificationConfig struct {
	VerifyChannelID   domain.ChannelID
	StaffLogChannelID domain.ChannelID
	MinAge            int
	Timeout           time.Duration
	WelcomeMessage    string
}

type verificationService struct {
	community ports.CommunityService
	snapshots ports.SnapshotRepository
	bypass    ports.BypassRegistry
	skipSet   ports.SkipSet
	kickedSet ports.SkipSet
	registry  *SupervisorRegistry
	enforcer  ports.FreezeEnforcer
	detector  ports.BypassDetector
	settings  FreezeSettings
	cfg       VerificationConfig
	clk       clock.Clock
	metrics   Metrics
	events    EventSink
	logger    *zap.SugaredLogger

	// mu guards pending and the dashboard-adjustable settings below.
	mu            sync.Mutex
	pending       map[domain.UserID]time.Time
	freezeEnabled bool
	minAge        int
	welcome       string
}

func NewVerificationService(
	community ports.CommunityService,
	snapshots ports.SnapshotRepository,
	bypass ports.BypassRegistry,
	skipSet ports.SkipSet,
	kickedSet ports.SkipSet,
	registry *SupervisorRegistry,
	enforcer ports.FreezeEnforcer,
	detector ports.BypassDetector,
	settings FreezeSettings,
	cfg VerificationConfig,
	clk clock.Clock,
	metrics Metrics,
	events EventSink,
	logger *zap.SugaredLogger,
) ports.VerificationService {
	return &verificationService{
		community: community,
		snapshots: snapshots,
		bypass:    bypass,
		skipSet:   skipSet,
		kickedSet: kickedSet,
		registry:  registry,
		enforcer:  enforcer,
		detector:  detector,
		settings:  settings,
		cfg:       cfg,
		clk:       clk,
		metrics:   metrics,
		events:    events,
		pending:   make(map[domain.UserID]time.Time),
		logger:    logger,

		freezeEnabled: settings.Enabled,
		minAge:        cfg.MinAge,
		welcome:       cfg.WelcomeMessage,
	}
}

// ApplyOverrides applies dashboard-pushed settings; nil fields keep the
// current value.
func (v *verificationService) ApplyOverrides(o ports.VerificationOverrides) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if o.FreezeEnabled != nil && *o.FreezeEnabled != v.freezeEnabled {
		v.freezeEnabled = *o.FreezeEnabled
		v.logger.Infow("freeze enforcement toggled remotely", "enabled", v.freezeEnabled)
	}
	if o.MinAge != nil {
		v.minAge = *o.MinAge
	}
	if o.WelcomeMessage != nil {
		v.welcome = *o.WelcomeMessage
	}
}

func (v *verificationService) isFreezeEnabled() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.freezeEnabled
}

// HandleJoin assigns the unverified marker, welcomes the member, and spawns
// the freeze supervisor plus the one-shot verification timeout task.
func (v *verificationService) HandleJoin(ctx context.Context, member *domain.Member) error {
	results, err := v.community.AddRoles(ctx, member.ID, []domain.RoleID{v.settings.Markers.Unverified}, "member joined, awaiting verification")
	if err != nil {
		v.logger.Warnw("failed to assign unverified marker on join", "user_id", member.ID, "error", err)
	}
	for _, res := range results {
		if res.Err != nil {
			v.logger.Warnw("unverified marker refused on join", "user_id", member.ID, "error", res.Err)
		}
	}

	v.mu.Lock()
	v.pending[member.ID] = v.clk.Now()
	v.mu.Unlock()

	v.mu.Lock()
	welcomeTemplate := v.welcome
	v.mu.Unlock()
	if v.cfg.VerifyChannelID != "" {
		welcome := strings.ReplaceAll(welcomeTemplate, "{member}", mention(member.ID))
		if err := v.community.SendMessage(ctx, v.cfg.VerifyChannelID, welcome); err != nil {
			v.logger.Warnw("failed to send welcome message", "user_id", member.ID, "error", err)
		}
	}

	if v.isFreezeEnabled() {
		sup := NewFreezeSupervisor(
			member.ID, v.community, v.snapshots, v.bypass, v.skipSet, v.kickedSet,
			v.settings, v.clk, v.metrics, v.logger,
		)
		if err := v.registry.Spawn(ctx, sup); err != nil {
			// Rapid leave/rejoin: the previous supervisor is still winding
			// down. It is rejected, not restarted; the running instance will
			// re-observe the fresh member state on its own next tick.
			v.logger.Warnw("supervisor already active, join ignored for supervision", "user_id", member.ID)
		}
	}

	go v.verificationTimeout(ctx, member.ID)

	v.events.PushEvent(ctx, "member_join", map[string]interface{}{
		"member_id": string(member.ID),
		"name":      member.Username,
		"pending":   true,
	})
	return nil
}

// HandleLeave clears transient per-user state so a rejoin starts clean.
func (v *verificationService) HandleLeave(ctx context.Context, userID domain.UserID) {
	v.mu.Lock()
	delete(v.pending, userID)
	v.mu.Unlock()

	v.events.PushEvent(ctx, "member_leave", map[string]interface{}{
		"member_id": string(userID),
	})
}

// HandleRoleChange is the dispatch path for a role-change event: bypass
// detection first, enforcement second.
func (v *verificationService) HandleRoleChange(ctx context.Context, member *domain.Member) {
	if !v.isFreezeEnabled() {
		return
	}
	if member.HasRole(v.settings.Markers.Verified) {
		return
	}
	if v.detector.CheckAndMaybeBypass(ctx, member) {
		return
	}
	v.enforcer.Enforce(ctx, member)
}

// DeclareAge processes the member's self-service age declaration. Underage
// members are marked and kicked; others complete verification.
func (v *verificationService) DeclareAge(ctx context.Context, userID domain.UserID, age int) error {
	v.mu.Lock()
	minAge := v.minAge
	v.mu.Unlock()
	if age < minAge {
		v.kickedSet.Add(userID)
		if err := v.community.KickMember(ctx, userID, ageKickReason); err != nil {
			v.community.StaffLog(ctx, "age kick failed", fmt.Sprintf("user %s: %v", userID, err))
			return err
		}
		v.mu.Lock()
		delete(v.pending, userID)
		v.mu.Unlock()
		v.metrics.MemberKicked()
		v.community.StaffLog(ctx, "member removed",
			fmt.Sprintf("user %s declared age %d (minimum %d)", userID, age, minAge))
		v.events.PushEvent(ctx, "member_kicked_for_age", map[string]interface{}{
			"member_id": string(userID),
		})
		return nil
	}

	// Mark first so the supervisor exits on its next tick even if role
	// propagation lags behind the restoring mutations.
	v.skipSet.Add(userID)
	return v.CompleteVerification(ctx, userID)
}

// CompleteVerification restores the member. The step order is load-bearing:
// the bypass is granted last so there is no window in which freeze could
// re-trigger on the restoration's own role-change events before roles are
// actually back.
func (v *verificationService) CompleteVerification(ctx context.Context, userID domain.UserID) error {
	member, err := v.community.GetMember(ctx, userID)
	if err != nil {
		return fmt.Errorf("cannot restore %s: %w", userID, err)
	}

	mutator := newRoleMutator(v.community, v.clk, v.settings.MutationDelay, v.logger)

	// 1. Re-add every snapshotted role the member does not currently hold.
	snapshot, err := v.snapshots.Get(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrSnapshotNotFound) {
		return fmt.Errorf("cannot read snapshot for %s: %w", userID, err)
	}
	var missing []domain.RoleID
	for _, role := range snapshot.Sorted() {
		if !member.HasRole(role) {
			missing = append(missing, role)
		}
	}
	restored := mutator.addBatch(ctx, userID, missing, restoreReason)
	if restored > 0 {
		v.metrics.RolesRestored(restored)
	}

	// 2. Add the verified marker if absent.
	if !member.HasRole(v.settings.Markers.Verified) {
		mutator.addBatch(ctx, userID, []domain.RoleID{v.settings.Markers.Verified}, verifyReason)
	}

	// 3. Remove the unverified marker if present.
	if member.HasRole(v.settings.Markers.Unverified) {
		mutator.removeBatch(ctx, userID, []domain.RoleID{v.settings.Markers.Unverified}, verifyReason)
	}

	// 4. Clear the snapshot.
	if err := v.snapshots.Clear(ctx, userID); err != nil {
		v.logger.Errorw("failed to clear snapshot after restore", "user_id", userID, "error", err)
	}

	// 5. Grace bypass so the enforcer does not fight this restoration.
	v.bypass.Grant(userID, v.settings.RestoreBypassTTL)

	v.mu.Lock()
	delete(v.pending, userID)
	v.mu.Unlock()

	v.metrics.MemberVerified()
	v.community.StaffLog(ctx, "member verified",
		fmt.Sprintf("user %s verified, %d role(s) restored", userID, restored))
	v.events.PushEvent(ctx, "member_verified", map[string]interface{}{
		"member_id":      string(userID),
		"roles_restored": restored,
	})
	return nil
}

func (v *verificationService) PendingCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.pending)
}

// verificationTimeout is the one-shot deadline task per joining member. It
// is observational: it captures a snapshot and reports, but never kicks.
func (v *verificationService) verificationTimeout(ctx context.Context, userID domain.UserID) {
	if err := v.clk.Sleep(ctx, v.cfg.Timeout); err != nil {
		return
	}

	member, err := v.community.GetMember(ctx, userID)
	if errors.Is(err, domain.ErrMemberGone) {
		return
	}
	if err != nil {
		v.logger.Debugw("timeout task fetch failed", "user_id", userID, "error", err)
		return
	}
	if member.HasRole(v.settings.Markers.Verified) {
		return
	}

	// Ensure a snapshot exists even if freeze never triggered.
	if _, err := v.snapshots.Get(ctx, userID); errors.Is(err, domain.ErrSnapshotNotFound) {
		active := member.ActiveRoles(v.settings.Markers)
		if active.Len() > 0 {
			if err := v.snapshots.Union(ctx, userID, active); err != nil {
				v.logger.Errorw("timeout task failed to capture snapshot", "user_id", userID, "error", err)
			}
		}
	}

	v.community.StaffLog(ctx, "verification timeout",
		fmt.Sprintf("user %s has not verified after %s", userID, utils.FormatDuration(v.cfg.Timeout)))
	v.events.PushEvent(ctx, "member_timeout", map[string]interface{}{
		"member_id": string(userID),
	})
}

func mention(userID domain.UserID) string {
	return "<@" + string(userID) + ">"
}
