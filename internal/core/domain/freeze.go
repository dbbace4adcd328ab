package domain

// SupervisorPhase is the debounce state machine phase of a running freeze
// supervisor.
type SupervisorPhase string

const (
	PhaseAccumulating SupervisorPhase = "accumulating"
	PhaseQuietWait    SupervisorPhase = "quiet_wait"
	PhaseRemoving     SupervisorPhase = "removing"
	PhaseTerminated   SupervisorPhase = "terminated"
)

// ExitReason records why a freeze supervisor terminated.
type ExitReason string

const (
	ExitVerified     ExitReason = "verified"
	ExitSelfVerified ExitReason = "self-verified"
	ExitLeft         ExitReason = "left"
	ExitKickedForAge ExitReason = "kicked-for-age"
	ExitBypassed     ExitReason = "bypassed"
	ExitShutdown     ExitReason = "shutdown"
	ExitOther        ExitReason = "other"
)

// SupervisorStatus is a point-in-time view of one running supervisor,
// exposed for the admin API and metrics.
type SupervisorStatus struct {
	UserID      UserID
	Phase       SupervisorPhase
	ActiveRoles int
	Ticks       int
}
