package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"guildwarden/internal/core/domain"
	"guildwarden/internal/core/ports"
	"guildwarden/internal/infrastructure/repositories/memory"
	"guildwarden/pkg/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) PushEvent(_ context.Context, event string, _ map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

type verifFixture struct {
	fc        *clock.Fake
	community *fakeCommunity
	snapshots ports.SnapshotRepository
	bypass    *fakeBypass
	skipSet   ports.SkipSet
	kickedSet ports.SkipSet
	registry  *SupervisorRegistry
	metrics   *recordingMetrics
	events    *recordingSink
	svc       *verificationService
}

func newVerifFixture(t *testing.T) *verifFixture {
	fc := clock.NewFake(time.Unix(1700000000, 0))
	community := newFakeCommunity()
	snapshots := memory.NewMemorySnapshotRepository()
	bypass := newFakeBypass()
	skipSet := memory.NewMemorySkipSet()
	kickedSet := memory.NewMemorySkipSet()
	registry := NewSupervisorRegistry()
	metrics := &recordingMetrics{}
	events := &recordingSink{}
	settings := testSettings()
	logger := zaptest.NewLogger(t).Sugar()

	enforcer := NewFreezeEnforcer(community, snapshots, bypass, settings, fc, metrics, logger)
	detector := NewBypassDetector(community, bypass, settings, fc, metrics, logger)

	svc := NewVerificationService(
		community, snapshots, bypass, skipSet, kickedSet, registry, enforcer, detector,
		settings,
		VerificationConfig{
			VerifyChannelID:   "chan-verify",
			StaffLogChannelID: "chan-staff",
			MinAge:            16,
			Timeout:           15 * time.Minute,
			WelcomeMessage:    "Welcome {member}, please verify.",
		},
		fc, metrics, events, logger,
	).(*verificationService)

	return &verifFixture{
		fc: fc, community: community, snapshots: snapshots, bypass: bypass,
		skipSet: skipSet, kickedSet: kickedSet, registry: registry,
		metrics: metrics, events: events, svc: svc,
	}
}

func TestVerificationService_HandleJoin(t *testing.T) {
	f := newVerifFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		f.registry.Wait(2 * time.Second)
	}()

	member := &domain.Member{ID: "user-1", Username: "newcomer"}
	f.community.putMember(member)

	require.NoError(t, f.svc.HandleJoin(ctx, member))

	assert.Contains(t, f.community.memberRoles("user-1"), domain.RoleID("role-unverified"))
	assert.Equal(t, 1, f.svc.PendingCount())
	assert.True(t, f.registry.Active("user-1"))

	require.Len(t, f.community.messages, 1)
	assert.True(t, strings.Contains(f.community.messages[0], "<@user-1>"),
		"welcome message must mention the member")

	// A second join while the supervisor is live is ignored, not an error.
	require.NoError(t, f.svc.HandleJoin(ctx, member))
	assert.Equal(t, []string{"member_join", "member_join"}, f.events.names())
}

func TestVerificationService_HandleLeaveClearsPending(t *testing.T) {
	f := newVerifFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		f.registry.Wait(2 * time.Second)
	}()

	member := &domain.Member{ID: "user-1"}
	f.community.putMember(member)
	require.NoError(t, f.svc.HandleJoin(ctx, member))
	require.Equal(t, 1, f.svc.PendingCount())

	f.svc.HandleLeave(ctx, "user-1")
	assert.Equal(t, 0, f.svc.PendingCount())
}

func TestVerificationService_HandleRoleChange_VerifiedUntouched(t *testing.T) {
	f := newVerifFixture(t)
	member := &domain.Member{ID: "user-1", Roles: []domain.RoleID{"role-verified", "role-a"}}
	f.community.putMember(member)

	f.svc.HandleRoleChange(context.Background(), member)

	assert.Empty(t, f.community.opLog())
}

func TestVerificationService_HandleRoleChange_StaffActionBypasses(t *testing.T) {
	f := newVerifFixture(t)
	member := &domain.Member{ID: "user-1", Roles: []domain.RoleID{"role-unverified", "role-a"}}
	f.community.putMember(member)
	f.community.auditEntries = []domain.AuditEntry{{
		TargetUser:          "user-1",
		Actor:               "staff-1",
		Timestamp:           f.fc.Now().Add(-time.Second),
		ActorCanManageRoles: true,
	}}

	f.svc.HandleRoleChange(context.Background(), member)

	assert.True(t, f.bypass.IsActive("user-1"))
	assert.Empty(t, f.community.opLog(), "bypassed member keeps the granted role")
}

func TestVerificationService_HandleRoleChange_Enforces(t *testing.T) {
	f := newVerifFixture(t)
	member := &domain.Member{ID: "user-1", Roles: []domain.RoleID{"role-unverified", "role-a"}}
	f.community.putMember(member)

	f.svc.HandleRoleChange(context.Background(), member)

	assert.Equal(t, []string{"remove:user-1:role-a"}, f.community.opLog())
}

func TestVerificationService_ApplyOverrides(t *testing.T) {
	f := newVerifFixture(t)
	ctx := context.Background()
	member := &domain.Member{ID: "user-1", Roles: []domain.RoleID{"role-unverified", "role-a"}}
	f.community.putMember(member)

	off := false
	f.svc.ApplyOverrides(ports.VerificationOverrides{FreezeEnabled: &off})
	f.svc.HandleRoleChange(ctx, member)
	assert.Empty(t, f.community.opLog(), "disabled freeze must not touch roles")

	on := true
	f.svc.ApplyOverrides(ports.VerificationOverrides{FreezeEnabled: &on})
	f.svc.HandleRoleChange(ctx, member)
	assert.Equal(t, []string{"remove:user-1:role-a"}, f.community.opLog())

	// Raising the minimum age kicks a declaration that previously passed.
	minAge := 21
	f.svc.ApplyOverrides(ports.VerificationOverrides{MinAge: &minAge})
	require.NoError(t, f.svc.DeclareAge(ctx, "user-1", 18))
	assert.Contains(t, f.community.kicked, domain.UserID("user-1"))
}

func TestVerificationService_DeclareAge_Underage(t *testing.T) {
	f := newVerifFixture(t)
	ctx := context.Background()
	f.community.putMember(&domain.Member{ID: "user-1"})

	require.NoError(t, f.svc.DeclareAge(ctx, "user-1", 13))

	assert.Equal(t, []domain.UserID{"user-1"}, f.community.kicked)
	assert.True(t, f.kickedSet.Contains("user-1"))
	assert.Equal(t, 1, f.metrics.kicked)
	assert.Contains(t, f.events.names(), "member_kicked_for_age")
	assert.NotEmpty(t, f.community.staffLogs)
}

func TestVerificationService_DeclareAge_KickFailureReported(t *testing.T) {
	f := newVerifFixture(t)
	ctx := context.Background()
	f.community.putMember(&domain.Member{ID: "user-1"})
	f.community.kickErr = domain.ErrTransientService

	err := f.svc.DeclareAge(ctx, "user-1", 13)
	require.Error(t, err)
	assert.Equal(t, 0, f.metrics.kicked)
	assert.NotEmpty(t, f.community.staffLogs)
}

func TestVerificationService_DeclareAge_OfAgeRestores(t *testing.T) {
	f := newVerifFixture(t)
	ctx := context.Background()
	f.community.putMember(&domain.Member{
		ID:    "user-1",
		Roles: []domain.RoleID{"role-unverified"},
	})
	require.NoError(t, f.snapshots.Union(ctx, "user-1", domain.NewRoleSet("role-a")))

	require.NoError(t, f.svc.DeclareAge(ctx, "user-1", 21))

	// The skip flag is raised before restoration so a live supervisor
	// exits even if role propagation lags.
	assert.True(t, f.skipSet.Contains("user-1"))
	assert.Equal(t, 1, f.metrics.verified)
	assert.Contains(t, f.community.memberRoles("user-1"), domain.RoleID("role-a"))
}

func TestVerificationService_CompleteVerification_Order(t *testing.T) {
	f := newVerifFixture(t)
	ctx := context.Background()

	// Member still holds role-c; role-a and role-b were frozen away.
	f.community.putMember(&domain.Member{
		ID:    "user-1",
		Roles: []domain.RoleID{"role-unverified", "role-c"},
	})
	require.NoError(t, f.snapshots.Union(ctx, "user-1",
		domain.NewRoleSet("role-a", "role-b", "role-c")))

	require.NoError(t, f.svc.CompleteVerification(ctx, "user-1"))

	// Restoration order is load-bearing: snapshot roles first, then the
	// verified marker, then the unverified marker comes off.
	assert.Equal(t, []string{
		"add:user-1:role-a",
		"add:user-1:role-b",
		"add:user-1:role-verified",
		"remove:user-1:role-unverified",
	}, f.community.opLog())

	// Snapshot cleared and the restoration grace bypass granted.
	_, err := f.snapshots.Get(ctx, "user-1")
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)

	ttl, ok := f.bypass.grantedTTL("user-1")
	require.True(t, ok)
	assert.Equal(t, testSettings().RestoreBypassTTL, ttl)

	assert.Equal(t, 2, f.metrics.restored)
	assert.Contains(t, f.events.names(), "member_verified")
}

func TestVerificationService_CompleteVerification_NoSnapshot(t *testing.T) {
	f := newVerifFixture(t)
	ctx := context.Background()
	f.community.putMember(&domain.Member{
		ID:    "user-1",
		Roles: []domain.RoleID{"role-unverified"},
	})

	require.NoError(t, f.svc.CompleteVerification(ctx, "user-1"))

	assert.Equal(t, []string{
		"add:user-1:role-verified",
		"remove:user-1:role-unverified",
	}, f.community.opLog())
	assert.True(t, f.bypass.IsActive("user-1"))
}

func TestVerificationService_CompleteVerification_Idempotent(t *testing.T) {
	f := newVerifFixture(t)
	ctx := context.Background()
	f.community.putMember(&domain.Member{
		ID:    "user-1",
		Roles: []domain.RoleID{"role-unverified"},
	})
	require.NoError(t, f.snapshots.Union(ctx, "user-1",
		domain.NewRoleSet("role-a", "role-b")))

	require.NoError(t, f.svc.CompleteVerification(ctx, "user-1"))
	rolesAfterFirst := f.community.memberRoles("user-1")
	opsAfterFirst := f.community.opLog()

	// A second restoration finds everything already in place and must not
	// issue a single further mutation.
	require.NoError(t, f.svc.CompleteVerification(ctx, "user-1"))

	assert.ElementsMatch(t, rolesAfterFirst, f.community.memberRoles("user-1"))
	assert.Equal(t, opsAfterFirst, f.community.opLog())

	_, err := f.snapshots.Get(ctx, "user-1")
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)

	ttl, ok := f.bypass.grantedTTL("user-1")
	require.True(t, ok)
	assert.Equal(t, testSettings().RestoreBypassTTL, ttl)
}

func TestVerificationService_CompleteVerification_MemberGone(t *testing.T) {
	f := newVerifFixture(t)

	err := f.svc.CompleteVerification(context.Background(), "user-1")
	assert.ErrorIs(t, err, domain.ErrMemberGone)
}

func TestVerificationService_TimeoutReportsWithoutKicking(t *testing.T) {
	f := newVerifFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.community.putMember(&domain.Member{
		ID:    "user-1",
		Roles: []domain.RoleID{"role-unverified", "role-a"},
	})

	done := make(chan struct{})
	go func() {
		f.svc.verificationTimeout(ctx, "user-1")
		close(done)
	}()

	waitForBlockedSleeper(t, f.fc)
	f.fc.Advance(15 * time.Minute)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout task did not finish")
	}

	// Observational only: a snapshot is captured, nobody is kicked.
	assert.Empty(t, f.community.kicked)
	snap, err := f.snapshots.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, snap.Equal(domain.NewRoleSet("role-a")))
	assert.NotEmpty(t, f.community.staffLogs)
	assert.Contains(t, f.events.names(), "member_timeout")
}

func TestVerificationService_TimeoutSilentWhenVerified(t *testing.T) {
	f := newVerifFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.community.putMember(&domain.Member{
		ID:    "user-1",
		Roles: []domain.RoleID{"role-verified", "role-a"},
	})

	done := make(chan struct{})
	go func() {
		f.svc.verificationTimeout(ctx, "user-1")
		close(done)
	}()

	waitForBlockedSleeper(t, f.fc)
	f.fc.Advance(15 * time.Minute)
	<-done

	assert.Empty(t, f.community.staffLogs)
	assert.Empty(t, f.events.names())
}

func waitForBlockedSleeper(t *testing.T, fc *clock.Fake) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fc.BlockedSleepers() >= 1 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for a blocked sleeper")
}
