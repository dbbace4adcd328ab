package ports

import (
	"context"
	"time"

	"guildwarden/internal/core/domain"
)

// FreezeEnforcer is the instant reaction path to a detected role change on
// an unverified member.
type FreezeEnforcer interface {
	Enforce(ctx context.Context, member *domain.Member)
}

// BypassDetector decides whether a recent role change was deliberate staff
// action, suspending freeze for a grace period when it was.
type BypassDetector interface {
	CheckAndMaybeBypass(ctx context.Context, member *domain.Member) bool
}

// VerificationService owns the member verification lifecycle.
type VerificationService interface {
	// HandleJoin reacts to a member joining: marker role, welcome message,
	// supervisor and timeout task spawn.
	HandleJoin(ctx context.Context, member *domain.Member) error
	// HandleLeave clears transient per-user state.
	HandleLeave(ctx context.Context, userID domain.UserID)
	// HandleRoleChange runs bypass detection then enforcement for an
	// unverified member whose roles changed.
	HandleRoleChange(ctx context.Context, member *domain.Member)
	// DeclareAge processes a self-service age declaration.
	DeclareAge(ctx context.Context, userID domain.UserID, age int) error
	// CompleteVerification restores snapshotted roles, swaps marker roles,
	// clears the snapshot and grants a grace bypass, in that order.
	CompleteVerification(ctx context.Context, userID domain.UserID) error
	// PendingCount reports members still awaiting verification.
	PendingCount() int
	// ApplyOverrides applies runtime settings pushed from the dashboard.
	// Nil fields leave the current value untouched.
	ApplyOverrides(o VerificationOverrides)
}

// VerificationOverrides carries the dashboard-adjustable subset of the
// verification settings.
type VerificationOverrides struct {
	FreezeEnabled  *bool
	MinAge         *int
	WelcomeMessage *string
}

type TicketService interface {
	Open(ctx context.Context, author domain.UserID, subject, body string) (*domain.Ticket, error)
	Claim(ctx context.Context, id domain.TicketID, staff domain.UserID) (*domain.Ticket, error)
	Close(ctx context.Context, id domain.TicketID, staff domain.UserID) (*domain.Ticket, error)
	Get(ctx context.Context, id domain.TicketID) (*domain.Ticket, error)
	ListOpen(ctx context.Context) ([]*domain.Ticket, error)
}

type ReminderService interface {
	Schedule(ctx context.Context, author domain.UserID, channel domain.ChannelID, message string, in time.Duration) (*domain.Reminder, error)
	List(ctx context.Context) ([]*domain.Reminder, error)
	// DispatchDue sends and removes all due reminders; returns how many fired.
	DispatchDue(ctx context.Context) (int, error)
}
