package ports

import (
	"context"

	"guildwarden/internal/core/domain"
)

// RoleResult is the outcome of one role mutation within a batch call.
type RoleResult struct {
	Role domain.RoleID
	Err  error
}

// CommunityService is the remote chat platform. It is the source of truth
// for member and role state; this process only reconciles toward it.
type CommunityService interface {
	// GetMember fetches the member, or domain.ErrMemberGone if they left.
	GetMember(ctx context.Context, userID domain.UserID) (*domain.Member, error)

	// AddRoles and RemoveRoles mutate the member's role set. Each role is
	// attempted independently; per-role failures are reported in the
	// results, not as a call-level error.
	AddRoles(ctx context.Context, userID domain.UserID, roles []domain.RoleID, reason string) ([]RoleResult, error)
	RemoveRoles(ctx context.Context, userID domain.UserID, roles []domain.RoleID, reason string) ([]RoleResult, error)

	// KickMember removes the member from the guild.
	KickMember(ctx context.Context, userID domain.UserID, reason string) error

	// RecentRoleChangeAudit returns the most recent role-change audit
	// entries, newest first. Returns domain.ErrAuditUnavailable when the
	// audit trail cannot be read.
	RecentRoleChangeAudit(ctx context.Context, limit int) ([]domain.AuditEntry, error)

	// SendMessage posts to a channel.
	SendMessage(ctx context.Context, channelID domain.ChannelID, content string) error

	// StaffLog posts to the staff log channel. Fire-and-forget: failures
	// are swallowed by the implementation.
	StaffLog(ctx context.Context, title, body string)
}
