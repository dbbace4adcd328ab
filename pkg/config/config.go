package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Guild struct {
		ID             string `yaml:"id"`
		BotUserID      string `yaml:"bot_user_id"`
		EveryoneRoleID string `yaml:"everyone_role_id"`
	} `yaml:"guild"`

	Verification struct {
		VerifyChannelID   string        `yaml:"verify_channel_id"`
		StaffLogChannelID string        `yaml:"staff_log_channel_id"`
		VerifiedRoleID    string        `yaml:"verified_role_id"`
		UnverifiedRoleID  string        `yaml:"unverified_role_id"`
		MinAge            int           `yaml:"min_age"`
		Timeout           time.Duration `yaml:"timeout"`
		WelcomeMessage    string        `yaml:"welcome_message"`
	} `yaml:"verification"`

	Freeze struct {
		Enabled          bool          `yaml:"enabled"`
		StartDelay       time.Duration `yaml:"start_delay"`
		TickInterval     time.Duration `yaml:"tick_interval"`
		AccumulateWindow time.Duration `yaml:"accumulate_window"`
		QuietGap         time.Duration `yaml:"quiet_gap"`
		MaxBatchRemove   int           `yaml:"max_batch_remove"`
		MutationDelay    time.Duration `yaml:"mutation_delay"`
		AuditLookback    int           `yaml:"audit_lookback"`
		AuditRecency     time.Duration `yaml:"audit_recency"`
		StaffBypassTTL   time.Duration `yaml:"staff_bypass_ttl"`
		RestoreBypassTTL time.Duration `yaml:"restore_bypass_ttl"`
	} `yaml:"freeze"`

	Reminders struct {
		DispatchInterval time.Duration `yaml:"dispatch_interval"`
		FilePath         string        `yaml:"file_path"`
	} `yaml:"reminders"`

	Notifier struct {
		Enabled         bool          `yaml:"enabled"`
		NotifyChannelID string        `yaml:"notify_channel_id"`
		PollInterval    time.Duration `yaml:"poll_interval"`
		Targets         []NotifierTarget `yaml:"targets"`
	} `yaml:"notifier"`

	Tickets struct {
		Enabled           bool   `yaml:"enabled"`
		StaffLogChannelID string `yaml:"staff_log_channel_id"`
	} `yaml:"tickets"`

	Backup struct {
		Enabled       bool          `yaml:"enabled"`
		Directory     string        `yaml:"directory"`
		Interval      time.Duration `yaml:"interval"`
		RetentionDays int           `yaml:"retention_days"`
	} `yaml:"backup"`

	Snapshot struct {
		FilePath string `yaml:"file_path"`
	} `yaml:"snapshot"`

	Platform struct {
		APIBaseURL string        `yaml:"api_base_url"`
		GatewayURL string        `yaml:"gateway_url"`
		Token      string        `yaml:"token"`
		Timeout    time.Duration `yaml:"timeout"`
		// Role mutation calls per second against the platform API.
		MutationRate  float64 `yaml:"mutation_rate"`
		MutationBurst int     `yaml:"mutation_burst"`
	} `yaml:"platform"`

	Dashboard struct {
		Enabled      bool          `yaml:"enabled"`
		BaseURL      string        `yaml:"base_url"`
		APIKey       string        `yaml:"api_key"`
		SyncInterval time.Duration `yaml:"sync_interval"`
		Timeout      time.Duration `yaml:"timeout"`
	} `yaml:"dashboard"`

	Admin struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		JWTSecret       string        `yaml:"jwt_secret"`
		TokenTTL        time.Duration `yaml:"token_ttl"`
		APIKey          string        `yaml:"api_key"`
	} `yaml:"admin"`

	RateLimiting struct {
		Enabled           bool    `yaml:"enabled"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limiting"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled    bool    `yaml:"enabled"`
		JaegerURL  string  `yaml:"jaeger_url"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`
}

// NotifierTarget is a streaming/upload source to poll and announce.
type NotifierTarget struct {
	Platform string `yaml:"platform"`
	URL      string `yaml:"url"`
	RoleID   string `yaml:"role_id,omitempty"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Guild
	if c.Guild.ID == "" {
		return fmt.Errorf("guild.id must not be empty")
	}

	// Verification
	if c.Verification.VerifiedRoleID == "" {
		return fmt.Errorf("verification.verified_role_id must not be empty")
	}
	if c.Verification.UnverifiedRoleID == "" {
		return fmt.Errorf("verification.unverified_role_id must not be empty")
	}
	if c.Verification.MinAge <= 0 {
		return fmt.Errorf("verification.min_age must be > 0")
	}
	if c.Verification.Timeout <= 0 {
		return fmt.Errorf("verification.timeout must be > 0")
	}

	// Freeze
	if c.Freeze.Enabled {
		if c.Freeze.TickInterval <= 0 {
			return fmt.Errorf("freeze.tick_interval must be > 0")
		}
		if c.Freeze.AccumulateWindow <= 0 {
			return fmt.Errorf("freeze.accumulate_window must be > 0")
		}
		if c.Freeze.QuietGap <= 0 {
			return fmt.Errorf("freeze.quiet_gap must be > 0")
		}
		if c.Freeze.MaxBatchRemove <= 0 {
			return fmt.Errorf("freeze.max_batch_remove must be > 0")
		}
		if c.Freeze.AuditLookback <= 0 {
			return fmt.Errorf("freeze.audit_lookback must be > 0")
		}
		if c.Freeze.AuditRecency <= 0 {
			return fmt.Errorf("freeze.audit_recency must be > 0")
		}
		if c.Freeze.StaffBypassTTL <= 0 {
			return fmt.Errorf("freeze.staff_bypass_ttl must be > 0")
		}
		if c.Freeze.RestoreBypassTTL <= 0 {
			return fmt.Errorf("freeze.restore_bypass_ttl must be > 0")
		}
	}

	// Reminders
	if c.Reminders.DispatchInterval <= 0 {
		return fmt.Errorf("reminders.dispatch_interval must be > 0")
	}

	// Notifier
	if c.Notifier.Enabled {
		if c.Notifier.NotifyChannelID == "" {
			return fmt.Errorf("notifier.notify_channel_id must not be empty when notifier.enabled=true")
		}
		if c.Notifier.PollInterval <= 0 {
			return fmt.Errorf("notifier.poll_interval must be > 0 when notifier.enabled=true")
		}
	}

	// Backup
	if c.Backup.Enabled {
		if c.Backup.Directory == "" {
			return fmt.Errorf("backup.directory must not be empty when backup.enabled=true")
		}
		if c.Backup.Interval <= 0 {
			return fmt.Errorf("backup.interval must be > 0 when backup.enabled=true")
		}
		if c.Backup.RetentionDays <= 0 {
			return fmt.Errorf("backup.retention_days must be > 0 when backup.enabled=true")
		}
	}

	// Platform
	if c.Platform.APIBaseURL == "" {
		return fmt.Errorf("platform.api_base_url must not be empty")
	}
	if c.Platform.Token == "" {
		return fmt.Errorf("platform.token must not be empty")
	}
	if c.Platform.Timeout <= 0 {
		return fmt.Errorf("platform.timeout must be > 0")
	}
	if c.Platform.MutationRate <= 0 {
		return fmt.Errorf("platform.mutation_rate must be > 0")
	}
	if c.Platform.MutationBurst <= 0 {
		return fmt.Errorf("platform.mutation_burst must be > 0")
	}

	// Dashboard
	if c.Dashboard.Enabled {
		if c.Dashboard.BaseURL == "" {
			return fmt.Errorf("dashboard.base_url must not be empty when dashboard.enabled=true")
		}
		if c.Dashboard.SyncInterval <= 0 {
			return fmt.Errorf("dashboard.sync_interval must be > 0 when dashboard.enabled=true")
		}
	}

	// Admin
	if c.Admin.Address == "" {
		return fmt.Errorf("admin.address must not be empty")
	}
	if c.Admin.JWTSecret == "" {
		return fmt.Errorf("admin.jwt_secret must not be empty")
	}
	if c.Admin.TokenTTL <= 0 {
		return fmt.Errorf("admin.token_ttl must be > 0")
	}
	if c.Admin.APIKey == "" {
		return fmt.Errorf("admin.api_key must not be empty")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0 when rate limiting is enabled")
		}
	}

	// Monitoring
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort <= 0 {
		return fmt.Errorf("monitoring.prometheus_port must be > 0 when prometheus_enabled=true")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Verification.MinAge = 16
	cfg.Verification.Timeout = 15 * time.Minute
	cfg.Verification.WelcomeMessage = "Welcome {member}! Complete verification by following the instructions in the verify channel."

	cfg.Freeze.Enabled = true
	cfg.Freeze.StartDelay = 5 * time.Second
	cfg.Freeze.TickInterval = 1 * time.Second
	cfg.Freeze.AccumulateWindow = 30 * time.Second
	cfg.Freeze.QuietGap = 5 * time.Second
	cfg.Freeze.MaxBatchRemove = 10
	cfg.Freeze.MutationDelay = 250 * time.Millisecond
	cfg.Freeze.AuditLookback = 3
	cfg.Freeze.AuditRecency = 5 * time.Second
	cfg.Freeze.StaffBypassTTL = 90 * time.Second
	cfg.Freeze.RestoreBypassTTL = 120 * time.Second

	cfg.Reminders.DispatchInterval = 30 * time.Second
	cfg.Reminders.FilePath = "data/reminders.json"

	cfg.Notifier.Enabled = false
	cfg.Notifier.PollInterval = 10 * time.Minute

	cfg.Tickets.Enabled = true

	cfg.Backup.Enabled = true
	cfg.Backup.Directory = "data/backups"
	cfg.Backup.Interval = 6 * time.Hour
	cfg.Backup.RetentionDays = 14

	cfg.Snapshot.FilePath = "data/snapshots.json"

	cfg.Platform.APIBaseURL = "https://discord.com/api/v10"
	cfg.Platform.GatewayURL = "wss://gateway.discord.gg"
	cfg.Platform.Timeout = 15 * time.Second
	cfg.Platform.MutationRate = 4
	cfg.Platform.MutationBurst = 8

	cfg.Dashboard.Enabled = false
	cfg.Dashboard.BaseURL = "http://localhost:8000"
	cfg.Dashboard.SyncInterval = 60 * time.Second
	cfg.Dashboard.Timeout = 15 * time.Second

	cfg.Admin.Address = ":8080"
	cfg.Admin.ReadTimeout = 30 * time.Second
	cfg.Admin.WriteTimeout = 30 * time.Second
	cfg.Admin.ShutdownTimeout = 30 * time.Second
	cfg.Admin.JWTSecret = "change-me-in-production"
	cfg.Admin.TokenTTL = 12 * time.Hour
	cfg.Admin.APIKey = "change-me-in-production"

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.RequestsPerSecond = 50
	cfg.RateLimiting.Burst = 100

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.PrometheusPort = 9090

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	return cfg
}

func (c *Config) applyEnvOverrides() {
	// Apply environment variable overrides
	if token := os.Getenv("GUILDWARDEN_PLATFORM_TOKEN"); token != "" {
		c.Platform.Token = token
	}
	if guildID := os.Getenv("GUILDWARDEN_GUILD_ID"); guildID != "" {
		c.Guild.ID = guildID
	}
	if addr := os.Getenv("GUILDWARDEN_ADMIN_ADDRESS"); addr != "" {
		c.Admin.Address = addr
	}
	if level := os.Getenv("GUILDWARDEN_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("GUILDWARDEN_JWT_SECRET"); secret != "" {
		c.Admin.JWTSecret = secret
	}
	if key := os.Getenv("GUILDWARDEN_ADMIN_API_KEY"); key != "" {
		c.Admin.APIKey = key
	}
	if key := os.Getenv("GUILDWARDEN_DASHBOARD_API_KEY"); key != "" {
		c.Dashboard.APIKey = key
	}
}
