package ports

import (
	"context"
	"time"

	"guildwarden/internal/core/domain"
)

// SnapshotRepository records, per user, the roles temporarily removed during
// freeze. Mutations are persisted before returning so a crash cannot lose an
// in-progress freeze.
type SnapshotRepository interface {
	// Get returns the snapshot set, or domain.ErrSnapshotNotFound.
	Get(ctx context.Context, userID domain.UserID) (domain.RoleSet, error)
	// Union merges roles into the user's snapshot. The snapshot only ever
	// grows until Clear; an overwrite must never shrink it.
	Union(ctx context.Context, userID domain.UserID, roles domain.RoleSet) error
	// Clear removes the user's snapshot entry.
	Clear(ctx context.Context, userID domain.UserID) error
	// All returns every snapshot entry, for backups and the admin API.
	All(ctx context.Context) (map[domain.UserID]domain.RoleSet, error)
}

// BypassRegistry maps users to a bypass expiry. An expired entry is
// equivalent to absence; entries are never explicitly deleted.
type BypassRegistry interface {
	Grant(userID domain.UserID, ttl time.Duration)
	IsActive(userID domain.UserID) bool
}

// SkipSet holds transient per-user flags (self-verified, kicked-for-age)
// that supervisors observe as exit conditions. Cleared on supervisor exit
// so a rejoin starts with a clean slate.
type SkipSet interface {
	Add(userID domain.UserID)
	Contains(userID domain.UserID) bool
	Remove(userID domain.UserID)
}

type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id domain.TicketID) (*domain.Ticket, error)
	Update(ctx context.Context, ticket *domain.Ticket) error
	ListOpen(ctx context.Context) ([]*domain.Ticket, error)
	All(ctx context.Context) ([]*domain.Ticket, error)
}

type ReminderRepository interface {
	Add(ctx context.Context, reminder *domain.Reminder) error
	Remove(ctx context.Context, id domain.ReminderID) error
	ListDue(ctx context.Context, now time.Time) ([]*domain.Reminder, error)
	All(ctx context.Context) ([]*domain.Reminder, error)
}

// NotifierStateRepository remembers which activities were already announced.
type NotifierStateRepository interface {
	Seen(ctx context.Context, key string) (bool, error)
	MarkSeen(ctx context.Context, key string) error
}
