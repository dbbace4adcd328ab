package services

import (
	"time"

	"guildwarden/internal/core/domain"
)

// FreezeSettings are the tuning knobs of the freeze machinery, built from
// config at the composition root.
type FreezeSettings struct {
	Enabled          bool
	Markers          domain.MarkerRoles
	StartDelay       time.Duration
	TickInterval     time.Duration
	AccumulateWindow time.Duration
	QuietGap         time.Duration
	MaxBatchRemove   int
	MutationDelay    time.Duration
	AuditLookback    int
	AuditRecency     time.Duration
	StaffBypassTTL   time.Duration
	RestoreBypassTTL time.Duration
	// BotUserID is this process's own identity in the audit trail; its
	// actions never count as staff intervention.
	BotUserID domain.UserID
}

// DefaultFreezeSettings mirrors the config defaults; used by tests.
func DefaultFreezeSettings() FreezeSettings {
	return FreezeSettings{
		Enabled:          true,
		StartDelay:       5 * time.Second,
		TickInterval:     1 * time.Second,
		AccumulateWindow: 30 * time.Second,
		QuietGap:         5 * time.Second,
		MaxBatchRemove:   10,
		MutationDelay:    250 * time.Millisecond,
		AuditLookback:    3,
		AuditRecency:     5 * time.Second,
		StaffBypassTTL:   90 * time.Second,
		RestoreBypassTTL: 120 * time.Second,
	}
}
