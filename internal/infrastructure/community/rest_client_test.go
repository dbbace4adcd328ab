package community

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"guildwarden/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakePlatform struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  func(w http.ResponseWriter, r *http.Request)
}

type recordedRequest struct {
	method string
	path   string
	auth   string
	reason string
}

func (f *fakePlatform) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		method: r.Method,
		path:   r.URL.Path,
		auth:   r.Header.Get("Authorization"),
		reason: r.Header.Get("X-Audit-Log-Reason"),
	})
	handler := f.handler
	f.mu.Unlock()

	if handler != nil {
		handler(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func newTestClient(t *testing.T, platform *fakePlatform) (*httptest.Server, *RESTClient) {
	srv := httptest.NewServer(platform)
	t.Cleanup(srv.Close)

	client := NewRESTClient(Options{
		BaseURL:         srv.URL,
		Token:           "test-token",
		GuildID:         "guild-1",
		StaffLogChannel: "chan-staff",
		Timeout:         2 * time.Second,
		MutationRate:    1000,
		MutationBurst:   1000,
	}, zaptest.NewLogger(t).Sugar())
	return srv, client.(*RESTClient)
}

func TestRESTClient_GetMember(t *testing.T) {
	platform := &fakePlatform{handler: func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"user":      map[string]string{"id": "user-1", "username": "sam"},
			"roles":     []string{"r1", "r2"},
			"joined_at": time.Unix(1700000000, 0).UTC().Format(time.RFC3339),
		})
	}}
	_, client := newTestClient(t, platform)

	member, err := client.GetMember(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("user-1"), member.ID)
	assert.Equal(t, "sam", member.Username)
	assert.Equal(t, []domain.RoleID{"r1", "r2"}, member.Roles)

	require.Len(t, platform.requests, 1)
	assert.Equal(t, "/guilds/guild-1/members/user-1", platform.requests[0].path)
	assert.Equal(t, "Bot test-token", platform.requests[0].auth)
}

func TestRESTClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"forbidden", http.StatusForbidden, domain.ErrPermissionDenied},
		{"not found", http.StatusNotFound, domain.ErrMemberGone},
		{"rate limited", http.StatusTooManyRequests, domain.ErrTransientService},
		{"server error", http.StatusInternalServerError, domain.ErrTransientService},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			platform := &fakePlatform{handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}}
			_, client := newTestClient(t, platform)

			_, err := client.GetMember(context.Background(), "user-1")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRESTClient_RemoveRolesPerRoleResults(t *testing.T) {
	platform := &fakePlatform{handler: func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/guilds/guild-1/members/user-1/roles/r2" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}}
	_, client := newTestClient(t, platform)

	results, err := client.RemoveRoles(context.Background(), "user-1", []domain.RoleID{"r1", "r2"}, "unverified member frozen")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, domain.ErrPermissionDenied)

	// The removal reason travels in the audit header.
	require.Len(t, platform.requests, 2)
	assert.Equal(t, http.MethodDelete, platform.requests[0].method)
	assert.Equal(t, "unverified member frozen", platform.requests[0].reason)
}

func TestRESTClient_AuditFailureWrapsUnavailable(t *testing.T) {
	platform := &fakePlatform{handler: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}}
	_, client := newTestClient(t, platform)

	_, err := client.RecentRoleChangeAudit(context.Background(), 3)
	assert.ErrorIs(t, err, domain.ErrAuditUnavailable)
}

func TestRESTClient_AuditResolvesActorCapabilities(t *testing.T) {
	// Snowflake for a recent timestamp so IsRecent logic downstream has
	// something real to work with.
	entryID := "1180000000000000000"

	platform := &fakePlatform{}
	platform.handler = func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/guilds/guild-1/audit-logs":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"audit_log_entries": []map[string]string{
					{"id": entryID, "user_id": "staff-1", "target_id": "user-1"},
				},
			})
		case "/guilds/guild-1/roles":
			json.NewEncoder(w).Encode([]map[string]string{
				{"id": "role-staff", "permissions": "268435456"}, // manage roles bit
			})
		case "/guilds/guild-1/members/staff-1":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"user":  map[string]string{"id": "staff-1", "username": "mod"},
				"roles": []string{"role-staff"},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
	_, client := newTestClient(t, platform)

	entries, err := client.RecentRoleChangeAudit(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.UserID("staff-1"), entries[0].Actor)
	assert.Equal(t, domain.UserID("user-1"), entries[0].TargetUser)
	assert.True(t, entries[0].ActorCanManageRoles)
	assert.False(t, entries[0].ActorIsAdmin)
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestRESTClient_MissingChannelIsNotMemberGone(t *testing.T) {
	platform := &fakePlatform{handler: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}}
	_, client := newTestClient(t, platform)

	// A deleted channel must not masquerade as a departed member.
	err := client.SendMessage(context.Background(), "chan-gone", "hello")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NotErrorIs(t, err, domain.ErrMemberGone)
}

func TestRESTClient_StaffLogSwallowsFailure(t *testing.T) {
	platform := &fakePlatform{handler: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}}
	_, client := newTestClient(t, platform)

	// Must not panic or surface the error.
	client.StaffLog(context.Background(), "freeze", "roles removed")
	require.Len(t, platform.requests, 1)
	assert.Equal(t, "/channels/chan-staff/messages", platform.requests[0].path)
}

func TestSnowflakeTime(t *testing.T) {
	// 0 >> 22 == 0, so the epoch snowflake maps to the platform epoch.
	assert.Equal(t, time.UnixMilli(1420070400000), snowflakeTime("0"))
	assert.True(t, snowflakeTime("not-a-number").IsZero())
}
