package services

import "guildwarden/internal/core/domain"

// Metrics is the narrow surface the services report through. The prometheus
// collector implements it; tests use the no-op.
type Metrics interface {
	SupervisorStarted()
	SupervisorExited(reason domain.ExitReason)
	RolesFrozen(count int)
	RolesRestored(count int)
	BypassGranted()
	MemberVerified()
	MemberKicked()
	TicketOpened()
	TicketClosed()
	ReminderDispatched()
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) SupervisorStarted()                 {}
func (NopMetrics) SupervisorExited(domain.ExitReason) {}
func (NopMetrics) RolesFrozen(int)                    {}
func (NopMetrics) RolesRestored(int)                  {}
func (NopMetrics) BypassGranted()                     {}
func (NopMetrics) MemberVerified()                    {}
func (NopMetrics) MemberKicked()                      {}
func (NopMetrics) TicketOpened()                      {}
func (NopMetrics) TicketClosed()                      {}
func (NopMetrics) ReminderDispatched()                {}
