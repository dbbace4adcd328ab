package repositories

import (
	"context"

	"guildwarden/internal/core/ports"
	"guildwarden/internal/infrastructure/repositories/file"
	"guildwarden/internal/infrastructure/repositories/memory"
	redisrepo "guildwarden/internal/infrastructure/repositories/redis"
	"guildwarden/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories with fallback support. Snapshots
// and reminders must survive a restart, so their fallback from Redis is the
// file store, never plain memory.
type RepositoryFactory struct {
	cfg         *config.Config
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		cfg:      cfg,
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.Connect(context.Background(), redisrepo.Options{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, logger)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to local repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if !factory.useRedis {
		logger.Info("using local repositories")
	}

	return factory, nil
}

// CreateSnapshotRepository creates the role snapshot store (Redis, else file).
func (f *RepositoryFactory) CreateSnapshotRepository() (ports.SnapshotRepository, error) {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisSnapshotRepository(f.redisClient), nil
	}
	return file.NewFileSnapshotRepository(f.cfg.Snapshot.FilePath, f.logger)
}

// CreateReminderRepository creates the reminder store (Redis, else file).
func (f *RepositoryFactory) CreateReminderRepository() (ports.ReminderRepository, error) {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisReminderRepository(f.redisClient), nil
	}
	return file.NewFileReminderRepository(f.cfg.Reminders.FilePath, f.logger)
}

// CreateTicketRepository creates a ticket repository (Redis or memory).
func (f *RepositoryFactory) CreateTicketRepository() ports.TicketRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisTicketRepository(f.redisClient)
	}
	return memory.NewMemoryTicketRepository()
}

// CreateNotifierStateRepository creates the seen-activity store.
func (f *RepositoryFactory) CreateNotifierStateRepository() ports.NotifierStateRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisNotifierStateRepository(f.redisClient)
	}
	return memory.NewMemoryNotifierStateRepository()
}

// Close releases the Redis connection if one was opened.
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return f.redisClient.Close()
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
