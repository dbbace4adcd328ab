package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"guildwarden/internal/core/domain"
	"guildwarden/internal/core/ports"
	"guildwarden/internal/core/services"
	"guildwarden/internal/infrastructure/middleware"
	"guildwarden/internal/infrastructure/repositories/memory"
	"guildwarden/pkg/clock"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubCommunity struct{}

func (stubCommunity) GetMember(ctx context.Context, userID domain.UserID) (*domain.Member, error) {
	return nil, domain.ErrMemberGone
}

func (stubCommunity) AddRoles(ctx context.Context, userID domain.UserID, roles []domain.RoleID, reason string) ([]ports.RoleResult, error) {
	return nil, nil
}

func (stubCommunity) RemoveRoles(ctx context.Context, userID domain.UserID, roles []domain.RoleID, reason string) ([]ports.RoleResult, error) {
	return nil, nil
}

func (stubCommunity) KickMember(ctx context.Context, userID domain.UserID, reason string) error {
	return nil
}

func (stubCommunity) RecentRoleChangeAudit(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	return nil, domain.ErrAuditUnavailable
}

func (stubCommunity) SendMessage(ctx context.Context, channelID domain.ChannelID, content string) error {
	return nil
}

func (stubCommunity) StaffLog(ctx context.Context, title, body string) {}

type stubVerification struct {
	verified []domain.UserID
	pending  int
}

func (s *stubVerification) HandleJoin(ctx context.Context, member *domain.Member) error { return nil }
func (s *stubVerification) HandleLeave(ctx context.Context, userID domain.UserID)       {}
func (s *stubVerification) HandleRoleChange(ctx context.Context, member *domain.Member) {}
func (s *stubVerification) DeclareAge(ctx context.Context, userID domain.UserID, age int) error {
	return nil
}

func (s *stubVerification) CompleteVerification(ctx context.Context, userID domain.UserID) error {
	s.verified = append(s.verified, userID)
	return nil
}

func (s *stubVerification) PendingCount() int { return s.pending }

func (s *stubVerification) ApplyOverrides(ports.VerificationOverrides) {}

type adminFixture struct {
	router       *gin.Engine
	verification *stubVerification
	snapshots    ports.SnapshotRepository
	bypass       ports.BypassRegistry
}

func newAdminFixture(t *testing.T) *adminFixture {
	logger := zaptest.NewLogger(t).Sugar()
	fc := clock.NewFake(time.Unix(1700000000, 0))
	snapshots := memory.NewMemorySnapshotRepository()
	bypass := memory.NewCacheBypassRegistry(time.Minute)
	verification := &stubVerification{pending: 2}

	ticketService := services.NewTicketService(
		memory.NewMemoryTicketRepository(), stubCommunity{}, fc, services.NopMetrics{}, logger,
	)
	reminderService := services.NewReminderService(
		memory.NewMemoryReminderRepository(), stubCommunity{}, fc, services.NopMetrics{}, logger,
	)

	handler := NewAdminHandler(
		verification, ticketService, reminderService,
		snapshots, bypass, services.NewSupervisorRegistry(), nil, nil,
	)

	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(logger))
	handler.SetupRoutes(router.Group("/api/v1"))

	return &adminFixture{
		router:       router,
		verification: verification,
		snapshots:    snapshots,
		bypass:       bypass,
	}
}

func (f *adminFixture) request(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestAdminHandler_TicketLifecycle(t *testing.T) {
	f := newAdminFixture(t)

	w := f.request("POST", "/api/v1/tickets", `{"author_id":"user-1","subject":"stuck in verification","body":"help"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Ticket domain.Ticket `json:"ticket"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.Ticket.ID)

	w = f.request("GET", "/api/v1/tickets", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "stuck in verification")

	w = f.request("POST", "/api/v1/tickets/"+string(created.Ticket.ID)+"/claim", `{"staff_id":"staff-1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "staff-1")

	w = f.request("POST", "/api/v1/tickets/"+string(created.Ticket.ID)+"/close", `{"staff_id":"staff-1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	// Claiming a closed ticket conflicts.
	w = f.request("POST", "/api/v1/tickets/"+string(created.Ticket.ID)+"/claim", `{"staff_id":"staff-2"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAdminHandler_TicketNotFound(t *testing.T) {
	f := newAdminFixture(t)

	w := f.request("GET", "/api/v1/tickets/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.request("POST", "/api/v1/tickets/nope/claim", `{"staff_id":"staff-1"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminHandler_OpenTicketValidation(t *testing.T) {
	f := newAdminFixture(t)

	w := f.request("POST", "/api/v1/tickets", `{"author_id":"user-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminHandler_VerifyMember(t *testing.T) {
	f := newAdminFixture(t)

	w := f.request("POST", "/api/v1/members/user-1/verify", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []domain.UserID{"user-1"}, f.verification.verified)
}

func TestAdminHandler_PendingVerifications(t *testing.T) {
	f := newAdminFixture(t)

	w := f.request("GET", "/api/v1/verification/pending", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"pending":2`)
}

func TestAdminHandler_GrantBypass(t *testing.T) {
	f := newAdminFixture(t)

	w := f.request("POST", "/api/v1/members/user-1/bypass", `{"ttl_seconds":60}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.bypass.IsActive("user-1"))

	// TTL outside the accepted range is rejected.
	w = f.request("POST", "/api/v1/members/user-2/bypass", `{"ttl_seconds":100000}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, f.bypass.IsActive("user-2"))
}

func TestAdminHandler_ListSnapshots(t *testing.T) {
	f := newAdminFixture(t)
	require.NoError(t, f.snapshots.Union(context.Background(), "user-1", domain.NewRoleSet("r1", "r2")))

	w := f.request("GET", "/api/v1/freeze/snapshots", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user-1":["r1","r2"]`)
}

func TestAdminHandler_ListSupervisorsEmpty(t *testing.T) {
	f := newAdminFixture(t)

	w := f.request("GET", "/api/v1/freeze/supervisors", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "supervisors")
}

func TestAdminHandler_Reminders(t *testing.T) {
	f := newAdminFixture(t)

	w := f.request("POST", "/api/v1/reminders", `{"author_id":"user-1","channel_id":"chan-1","message":"check back","in_seconds":300}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.request("GET", "/api/v1/reminders", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "check back")

	// Missing fields are rejected by binding.
	w = f.request("POST", "/api/v1/reminders", `{"author_id":"user-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
