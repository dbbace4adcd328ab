package monitoring

import (
	"guildwarden/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	supervisorsActive  prometheus.Gauge
	supervisorsStarted prometheus.Counter
	supervisorExits    *prometheus.CounterVec

	rolesFrozenTotal   prometheus.Counter
	rolesRestoredTotal prometheus.Counter
	bypassesGranted    prometheus.Counter

	membersVerified prometheus.Counter
	membersKicked   prometheus.Counter

	ticketsOpen         prometheus.Gauge
	ticketsOpenedTotal  prometheus.Counter
	remindersDispatched prometheus.Counter
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		supervisorsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "guildwarden_freeze_supervisors_active",
			Help: "Number of freeze supervisors currently running",
		}),

		supervisorsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guildwarden_freeze_supervisors_started_total",
			Help: "Total number of freeze supervisors spawned",
		}),

		supervisorExits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guildwarden_freeze_supervisor_exits_total",
			Help: "Supervisor exits by reason",
		}, []string{"reason"}),

		rolesFrozenTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guildwarden_roles_frozen_total",
			Help: "Total roles removed by freeze enforcement",
		}),

		rolesRestoredTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guildwarden_roles_restored_total",
			Help: "Total roles re-added after verification",
		}),

		bypassesGranted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guildwarden_freeze_bypasses_granted_total",
			Help: "Total staff-action bypasses granted",
		}),

		membersVerified: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guildwarden_members_verified_total",
			Help: "Total members who completed verification",
		}),

		membersKicked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guildwarden_members_kicked_total",
			Help: "Total members removed for being under the minimum age",
		}),

		ticketsOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "guildwarden_tickets_open",
			Help: "Number of tickets currently open or claimed",
		}),

		ticketsOpenedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guildwarden_tickets_opened_total",
			Help: "Total tickets opened",
		}),

		remindersDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guildwarden_reminders_dispatched_total",
			Help: "Total reminders delivered",
		}),
	}
}

func (p *PrometheusCollector) SupervisorStarted() {
	p.supervisorsStarted.Inc()
	p.supervisorsActive.Inc()
}

func (p *PrometheusCollector) SupervisorExited(reason domain.ExitReason) {
	p.supervisorsActive.Dec()
	p.supervisorExits.WithLabelValues(string(reason)).Inc()
}

func (p *PrometheusCollector) RolesFrozen(count int) {
	p.rolesFrozenTotal.Add(float64(count))
}

func (p *PrometheusCollector) RolesRestored(count int) {
	p.rolesRestoredTotal.Add(float64(count))
}

func (p *PrometheusCollector) BypassGranted() {
	p.bypassesGranted.Inc()
}

func (p *PrometheusCollector) MemberVerified() {
	p.membersVerified.Inc()
}

func (p *PrometheusCollector) MemberKicked() {
	p.membersKicked.Inc()
}

func (p *PrometheusCollector) TicketOpened() {
	p.ticketsOpenedTotal.Inc()
	p.ticketsOpen.Inc()
}

func (p *PrometheusCollector) TicketClosed() {
	p.ticketsOpen.Dec()
}

func (p *PrometheusCollector) ReminderDispatched() {
	p.remindersDispatched.Inc()
}
