package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"guildwarden/internal/core/domain"
	"guildwarden/internal/core/ports"
)

// fakeCommunity is an in-memory platform double. Role mutations are applied
// to the stored member so subsequent GetMember calls observe them, and every
// mutation is appended to an ordered op log for order-sensitive assertions.
type fakeCommunity struct {
	mu      sync.Mutex
	members map[domain.UserID]*domain.Member

	ops       []string
	staffLogs []string
	messages  []string
	kicked    []domain.UserID

	// Per-role errors injected into mutations. transientRemovals makes the
	// first N removal attempts of a role fail with ErrTransientService.
	addErr            map[domain.RoleID]error
	removeErr         map[domain.RoleID]error
	transientRemovals map[domain.RoleID]int

	auditEntries []domain.AuditEntry
	auditErr     error
	sendErr      error
	kickErr      error
	getErr       error
}

func newFakeCommunity() *fakeCommunity {
	return &fakeCommunity{
		members:           make(map[domain.UserID]*domain.Member),
		addErr:            make(map[domain.RoleID]error),
		removeErr:         make(map[domain.RoleID]error),
		transientRemovals: make(map[domain.RoleID]int),
	}
}

func (f *fakeCommunity) putMember(m *domain.Member) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *m
	copied.Roles = append([]domain.RoleID(nil), m.Roles...)
	f.members[m.ID] = &copied
}

func (f *fakeCommunity) removeMember(id domain.UserID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members, id)
}

func (f *fakeCommunity) memberRoles(id domain.UserID) []domain.RoleID {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[id]
	if !ok {
		return nil
	}
	return append([]domain.RoleID(nil), m.Roles...)
}

func (f *fakeCommunity) opLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *fakeCommunity) GetMember(ctx context.Context, userID domain.UserID) (*domain.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	m, ok := f.members[userID]
	if !ok {
		return nil, domain.ErrMemberGone
	}
	copied := *m
	copied.Roles = append([]domain.RoleID(nil), m.Roles...)
	return &copied, nil
}

func (f *fakeCommunity) AddRoles(ctx context.Context, userID domain.UserID, roles []domain.RoleID, reason string) ([]ports.RoleResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	results := make([]ports.RoleResult, 0, len(roles))
	for _, role := range roles {
		if err := f.addErr[role]; err != nil {
			results = append(results, ports.RoleResult{Role: role, Err: err})
			continue
		}
		if m, ok := f.members[userID]; ok && !hasRole(m.Roles, role) {
			m.Roles = append(m.Roles, role)
		}
		f.ops = append(f.ops, fmt.Sprintf("add:%s:%s", userID, role))
		results = append(results, ports.RoleResult{Role: role})
	}
	return results, nil
}

func (f *fakeCommunity) RemoveRoles(ctx context.Context, userID domain.UserID, roles []domain.RoleID, reason string) ([]ports.RoleResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	results := make([]ports.RoleResult, 0, len(roles))
	for _, role := range roles {
		if n := f.transientRemovals[role]; n > 0 {
			f.transientRemovals[role] = n - 1
			results = append(results, ports.RoleResult{Role: role, Err: domain.ErrTransientService})
			continue
		}
		if err := f.removeErr[role]; err != nil {
			results = append(results, ports.RoleResult{Role: role, Err: err})
			continue
		}
		if m, ok := f.members[userID]; ok {
			m.Roles = withoutRole(m.Roles, role)
		}
		f.ops = append(f.ops, fmt.Sprintf("remove:%s:%s", userID, role))
		results = append(results, ports.RoleResult{Role: role})
	}
	return results, nil
}

func (f *fakeCommunity) KickMember(ctx context.Context, userID domain.UserID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.kickErr != nil {
		return f.kickErr
	}
	delete(f.members, userID)
	f.kicked = append(f.kicked, userID)
	f.ops = append(f.ops, fmt.Sprintf("kick:%s", userID))
	return nil
}

func (f *fakeCommunity) RecentRoleChangeAudit(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.auditErr != nil {
		return nil, f.auditErr
	}
	if limit > len(f.auditEntries) {
		limit = len(f.auditEntries)
	}
	return append([]domain.AuditEntry(nil), f.auditEntries[:limit]...), nil
}

func (f *fakeCommunity) SendMessage(ctx context.Context, channelID domain.ChannelID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.messages = append(f.messages, string(channelID)+": "+content)
	return nil
}

func (f *fakeCommunity) StaffLog(ctx context.Context, title, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staffLogs = append(f.staffLogs, title+": "+body)
}

func hasRole(roles []domain.RoleID, role domain.RoleID) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func withoutRole(roles []domain.RoleID, role domain.RoleID) []domain.RoleID {
	out := roles[:0]
	for _, r := range roles {
		if r != role {
			out = append(out, r)
		}
	}
	return out
}

// fakeBypass is a registry with explicit state, independent of wall time.
type fakeBypass struct {
	mu     sync.Mutex
	active map[domain.UserID]bool
	grants map[domain.UserID]time.Duration
}

func newFakeBypass() *fakeBypass {
	return &fakeBypass{
		active: make(map[domain.UserID]bool),
		grants: make(map[domain.UserID]time.Duration),
	}
}

func (f *fakeBypass) Grant(userID domain.UserID, ttl time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[userID] = true
	f.grants[userID] = ttl
}

func (f *fakeBypass) IsActive(userID domain.UserID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[userID]
}

func (f *fakeBypass) grantedTTL(userID domain.UserID) (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ttl, ok := f.grants[userID]
	return ttl, ok
}

// recordingMetrics counts the observations the freeze paths report.
type recordingMetrics struct {
	NopMetrics
	mu       sync.Mutex
	frozen   int
	restored int
	bypasses int
	verified int
	kicked   int
	opened   int
	closed   int
	exits    []domain.ExitReason
}

func (m *recordingMetrics) TicketOpened() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened++
}

func (m *recordingMetrics) TicketClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
}

func (m *recordingMetrics) RolesFrozen(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frozen += count
}

func (m *recordingMetrics) RolesRestored(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restored += count
}

func (m *recordingMetrics) BypassGranted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bypasses++
}

func (m *recordingMetrics) MemberVerified() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verified++
}

func (m *recordingMetrics) MemberKicked() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kicked++
}

func (m *recordingMetrics) SupervisorExited(reason domain.ExitReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exits = append(m.exits, reason)
}

func testSettings() FreezeSettings {
	return FreezeSettings{
		Enabled: true,
		Markers: domain.MarkerRoles{
			Verified:   "role-verified",
			Unverified: "role-unverified",
			Everyone:   "role-everyone",
		},
		StartDelay:       5 * time.Second,
		TickInterval:     time.Second,
		AccumulateWindow: 30 * time.Second,
		QuietGap:         5 * time.Second,
		MaxBatchRemove:   10,
		MutationDelay:    0,
		AuditLookback:    3,
		AuditRecency:     5 * time.Second,
		StaffBypassTTL:   90 * time.Second,
		RestoreBypassTTL: 120 * time.Second,
		BotUserID:        "bot-user",
	}
}
