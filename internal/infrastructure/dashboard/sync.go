package dashboard

import (
	"context"
	"time"

	"guildwarden/internal/core/ports"
	"guildwarden/internal/core/services"
	"guildwarden/pkg/clock"

	"go.uber.org/zap"
)

// Syncer periodically pushes a metrics snapshot to the dashboard and pulls
// remote configuration, applying overrides through the callback.
type Syncer struct {
	bridge       *Bridge
	registry     *services.SupervisorRegistry
	verification ports.VerificationService
	tickets      ports.TicketRepository
	interval     time.Duration
	clk          clock.Clock
	onConfig     func(*RemoteConfig)
	logger       *zap.SugaredLogger
}

func NewSyncer(
	bridge *Bridge,
	registry *services.SupervisorRegistry,
	verification ports.VerificationService,
	tickets ports.TicketRepository,
	interval time.Duration,
	clk clock.Clock,
	onConfig func(*RemoteConfig),
	logger *zap.SugaredLogger,
) *Syncer {
	return &Syncer{
		bridge:       bridge,
		registry:     registry,
		verification: verification,
		tickets:      tickets,
		interval:     interval,
		clk:          clk,
		onConfig:     onConfig,
		logger:       logger,
	}
}

// Run syncs until the context is cancelled.
func (s *Syncer) Run(ctx context.Context) {
	for {
		if err := s.clk.Sleep(ctx, s.interval); err != nil {
			return
		}
		s.syncOnce(ctx)
	}
}

func (s *Syncer) syncOnce(ctx context.Context) {
	metrics := map[string]interface{}{
		"supervisors_active":    len(s.registry.Statuses()),
		"pending_verifications": s.verification.PendingCount(),
	}
	if open, err := s.tickets.ListOpen(ctx); err == nil {
		metrics["tickets_open"] = len(open)
	}
	s.bridge.PushMetrics(ctx, metrics)

	cfg, err := s.bridge.FetchConfig(ctx)
	if err != nil {
		s.logger.Debugw("dashboard config pull failed", "error", err)
		return
	}
	if s.onConfig != nil {
		s.onConfig(cfg)
	}
}
