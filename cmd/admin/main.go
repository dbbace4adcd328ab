package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"guildwarden/internal/core/domain"
	"guildwarden/internal/core/ports"
	"guildwarden/internal/core/services"
	httphandlers "guildwarden/internal/handlers/http"
	infrabackup "guildwarden/internal/infrastructure/backup"
	"guildwarden/internal/infrastructure/community"
	"guildwarden/internal/infrastructure/middleware"
	"guildwarden/internal/infrastructure/monitoring"
	"guildwarden/internal/infrastructure/repositories"
	"guildwarden/internal/infrastructure/repositories/memory"
	backuppkg "guildwarden/pkg/backup"
	"guildwarden/pkg/clock"
	"guildwarden/pkg/config"
	"guildwarden/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// The admin server is a separate process from the bot. It operates on the
// shared stores (Redis or the data files) and talks to the platform
// directly, so staff can verify members and manage content even while the
// bot itself is restarting. Live supervisor state is only visible when the
// stores are shared through Redis.
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

	bypass := memory.NewCacheBypassRegistry(cfg.Freeze.StaffBypassTTL)
	skipSet := memory.NewMemorySkipSet()
	kickedSet := memory.NewMemorySkipSet()

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
	metrics := services.NopMetrics{}

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
		clk, metrics, services.NopEventSink{}, log,
	)
	var ticketService ports.TicketService
	if cfg.Tickets.Enabled {
		ticketService = services.NewTicketService(tickets, platform, clk, metrics, log)
	}
	reminderService := services.NewReminderService(reminders, platform, clk, metrics, log)
	authService := services.NewAuthService(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL)

	storage, err := backuppkg.NewFileStorage(cfg.Backup.Directory)
	if err != nil {
		log.Fatalw("failed to open backup storage", "error", err)
	}
	backupService := backuppkg.NewService(storage, "1")
	restoreService := infrabackup.NewRestoreService(backupService, snapshots, tickets, reminders, log)

	health := monitoring.NewHealthChecker()
	health.AddCheck("stores", func(ctx context.Context) (bool, error) {
		if err := repoFactory.HealthCheck(ctx); err != nil {
			return false, err
		}
		return true, nil
	}, 2*time.Second)

	adminHandler := httphandlers.NewAdminHandler(
		verification, ticketService, reminderService,
		snapshots, bypass, registry, restoreService, health,
	)
	authHandler := httphandlers.NewAuthHandler(authService, cfg.Admin.APIKey)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}

	authHandler.SetupRoutes(router)
	adminHandler.SetupHealthRoute(router)

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(authService))
	adminHandler.SetupRoutes(api)

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	srv := &http.Server{
		Addr:         cfg.Admin.Address,
		Handler:      router,
		ReadTimeout:  cfg.Admin.ReadTimeout,
		WriteTimeout: cfg.Admin.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("starting guildwarden admin server on %s", cfg.Admin.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Admin.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	} else {
		log.Info("server shutdown gracefully")
	}

	log.Info("guildwarden admin server stopped")
}
