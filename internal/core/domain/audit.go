package domain

import "time"

// AuditEntry is one recent role-change action from the platform audit trail.
type AuditEntry struct {
	TargetUser UserID
	Actor      UserID
	Timestamp  time.Time
	// Capability flags of the actor at the time of the action.
	ActorCanManageRoles bool
	ActorIsAdmin        bool
}

// IsRecent reports whether the entry was recorded within the window before now.
func (e *AuditEntry) IsRecent(now time.Time, window time.Duration) bool {
	return now.Sub(e.Timestamp) <= window
}
