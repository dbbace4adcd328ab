package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"guildwarden/internal/core/domain"
	"guildwarden/internal/core/ports"
	"guildwarden/internal/core/services"
	"guildwarden/internal/infrastructure/backup"
	"guildwarden/internal/infrastructure/community"
	"guildwarden/internal/infrastructure/dashboard"
	"guildwarden/internal/infrastructure/gateway"
	"guildwarden/internal/infrastructure/monitoring"
	notifierinfra "guildwarden/internal/infrastructure/notifier"
	"guildwarden/internal/infrastructure/repositories"
	"guildwarden/internal/infrastructure/repositories/memory"
	backuppkg "guildwarden/pkg/backup"
	"guildwarden/pkg/clock"
	"guildwarden/pkg/config"
	"guildwarden/pkg/logger"
	"guildwarden/pkg/tracing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const supervisorDrainTimeout = 10 * time.Second

func main() {
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error
	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		panic(err)
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "guildwarden-bot",
		JaegerURL:   cfg.Tracing.JaegerURL,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Warnw("tracing init failed, continuing without it", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Repositories.
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	snapshots, err := repoFactory.CreateSnapshotRepository()
	if err != nil {
		log.Fatalw("failed to open snapshot store", "error", err)
	}
	reminders, err := repoFactory.CreateReminderRepository()
	if err != nil {
		log.Fatalw("failed to open reminder store", "error", err)
	}
	tickets := repoFactory.CreateTicketRepository()
	notifierState := repoFactory.CreateNotifierStateRepository()

	bypass := memory.NewCacheBypassRegistry(cfg.Freeze.StaffBypassTTL)
	skipSet := memory.NewMemorySkipSet()
	kickedSet := memory.NewMemorySkipSet()

	// Platform client.
	platform := community.NewRESTClient(community.Options{
		BaseURL:         cfg.Platform.APIBaseURL,
		Token:           cfg.Platform.Token,
		GuildID:         domain.GuildID(cfg.Guild.ID),
		StaffLogChannel: domain.ChannelID(cfg.Verification.StaffLogChannelID),
		Timeout:         cfg.Platform.Timeout,
		MutationRate:    cfg.Platform.MutationRate,
		MutationBurst:   cfg.Platform.MutationBurst,
	}, log)

	clk := clock.NewReal()
	var metrics services.Metrics = services.NopMetrics{}
	if cfg.Monitoring.PrometheusEnabled {
		metrics = monitoring.NewPrometheusCollector()
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort)
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Infow("serving prometheus metrics", "addr", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Errorw("metrics server failed", "error", err)
			}
		}()
	}

	settings := services.FreezeSettings{
		Enabled: cfg.Freeze.Enabled,
		Markers: domain.MarkerRoles{
			Verified:   domain.RoleID(cfg.Verification.VerifiedRoleID),
			Unverified: domain.RoleID(cfg.Verification.UnverifiedRoleID),
			Everyone:   domain.RoleID(cfg.Guild.EveryoneRoleID),
		},
		StartDelay:       cfg.Freeze.StartDelay,
		TickInterval:     cfg.Freeze.TickInterval,
		AccumulateWindow: cfg.Freeze.AccumulateWindow,
		QuietGap:         cfg.Freeze.QuietGap,
		MaxBatchRemove:   cfg.Freeze.MaxBatchRemove,
		MutationDelay:    cfg.Freeze.MutationDelay,
		AuditLookback:    cfg.Freeze.AuditLookback,
		AuditRecency:     cfg.Freeze.AuditRecency,
		StaffBypassTTL:   cfg.Freeze.StaffBypassTTL,
		RestoreBypassTTL: cfg.Freeze.RestoreBypassTTL,
		BotUserID:        domain.UserID(cfg.Guild.BotUserID),
	}

	// Dashboard bridge doubles as the event sink when enabled.
	var events services.EventSink = services.NopEventSink{}
	var bridge *dashboard.Bridge
	if cfg.Dashboard.Enabled {
		bridge = dashboard.NewBridge(cfg.Dashboard.BaseURL, cfg.Dashboard.APIKey, cfg.Dashboard.Timeout, log)
		events = bridge
	}

	// Core services.
	registry := services.NewSupervisorRegistry()
	enforcer := services.NewFreezeEnforcer(platform, snapshots, bypass, settings, clk, metrics, log)
	detector := services.NewBypassDetector(platform, bypass, settings, clk, metrics, log)
	verification := services.NewVerificationService(
		platform, snapshots, bypass, skipSet, kickedSet, registry, enforcer, detector,
		settings,
		services.VerificationConfig{
			VerifyChannelID:   domain.ChannelID(cfg.Verification.VerifyChannelID),
			StaffLogChannelID: domain.ChannelID(cfg.Verification.StaffLogChannelID),
			MinAge:            cfg.Verification.MinAge,
			Timeout:           cfg.Verification.Timeout,
			WelcomeMessage:    cfg.Verification.WelcomeMessage,
		},
		clk, metrics, events, log,
	)
	reminderService := services.NewReminderService(reminders, platform, clk, metrics, log)

	// Gateway event stream.
	consumer := gateway.NewConsumer(cfg.Platform.GatewayURL, cfg.Platform.Token, verification, log)
	go consumer.Run(ctx)

	// Reminder dispatch loop.
	go services.RunReminderDispatcher(ctx, reminderService, clk, cfg.Reminders.DispatchInterval, log)

	// Social activity notifier.
	if cfg.Notifier.Enabled {
		targets := make([]domain.NotifierTarget, 0, len(cfg.Notifier.Targets))
		for _, t := range cfg.Notifier.Targets {
			targets = append(targets, domain.NotifierTarget{
				Platform: t.Platform,
				URL:      t.URL,
				RoleID:   domain.RoleID(t.RoleID),
			})
		}
		source := notifierinfra.NewHTTPSource(cfg.Platform.Timeout, log)
		notifier := services.NewNotifierService(
			source, notifierState, platform, targets,
			domain.ChannelID(cfg.Notifier.NotifyChannelID),
			cfg.Notifier.PollInterval, clk, log,
		)
		go notifier.Run(ctx)
	}

	// Content backups.
	var scheduler *backup.Scheduler
	if cfg.Backup.Enabled {
		storage, err := backuppkg.NewFileStorage(cfg.Backup.Directory)
		if err != nil {
			log.Fatalw("failed to open backup storage", "error", err)
		}
		backupService := backuppkg.NewService(storage, "1")
		scheduler = backup.NewScheduler(backupService, snapshots, tickets, reminders, backup.Config{
			Interval:      cfg.Backup.Interval,
			RetentionDays: cfg.Backup.RetentionDays,
		}, log)
		go scheduler.Start(ctx)
	}

	// Dashboard sync.
	if bridge != nil {
		applyRemote := func(remote *dashboard.RemoteConfig) {
			verification.ApplyOverrides(ports.VerificationOverrides{
				FreezeEnabled:  remote.FreezeEnabled,
				MinAge:         remote.MinAge,
				WelcomeMessage: remote.WelcomeMessage,
			})
		}
		syncer := dashboard.NewSyncer(bridge, registry, verification, tickets,
			cfg.Dashboard.SyncInterval, clk, applyRemote, log)
		go syncer.Run(ctx)
	}

	log.Infow("guildwarden bot started",
		"guild_id", cfg.Guild.ID,
		"freeze_enabled", cfg.Freeze.Enabled,
		"backup_enabled", cfg.Backup.Enabled,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Infow("received shutdown signal", "signal", sig)

	cancel()
	if scheduler != nil {
		scheduler.Stop()
	}
	if !registry.Wait(supervisorDrainTimeout) {
		log.Warn("some freeze supervisors did not exit before the drain timeout")
	}

	if tp != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		tp.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	log.Info("guildwarden bot stopped")
}
