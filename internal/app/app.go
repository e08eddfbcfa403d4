package app

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/kursadbilgin/docdrop/internal/config"
	"github.com/kursadbilgin/docdrop/internal/domain"
	"github.com/kursadbilgin/docdrop/internal/identity"
	"github.com/kursadbilgin/docdrop/internal/infra/postgresql"
	"github.com/kursadbilgin/docdrop/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/docdrop/internal/infra/redis"
	"github.com/kursadbilgin/docdrop/internal/observability"
	"github.com/kursadbilgin/docdrop/internal/queue"
	"github.com/kursadbilgin/docdrop/internal/repository"
	"github.com/kursadbilgin/docdrop/internal/service"
	"github.com/kursadbilgin/docdrop/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Infra holds the process-wide connections shared by the api and the cli.
type Infra struct {
	DB        *gorm.DB
	SQL       *sql.DB
	Redis     *redis.Client
	Store     storage.ObjectStore
	Documents *repository.GormDocumentRepo
	Orphans   *infraredis.OrphanRegistry
	Limiter   *infraredis.RedisRateLimiter
	Publisher queue.Publisher
	Metrics   *observability.Metrics

	logger *zap.Logger
}

// Open connects postgres, runs migrations, connects redis and builds the object store and publisher.
func Open(cfg *config.Config, logger *zap.Logger) (*Infra, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	infra := &Infra{logger: logger, Metrics: observability.NewMetrics()}
	ok := false
	defer func() {
		if !ok {
			_ = infra.Close()
		}
	}()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, postgresql.DefaultPoolConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("postgres initialization failed: %w", err)
	}
	infra.DB = db

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	infra.SQL = sqlDB

	if err := migrations.Migrate(db); err != nil {
		return nil, fmt.Errorf("database migrations failed: %w", err)
	}
	infra.Documents = repository.NewGormDocumentRepo(db)

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis initialization failed: %w", err)
	}
	infra.Redis = rdb

	if infra.Orphans, err = infraredis.NewOrphanRegistry(rdb); err != nil {
		return nil, err
	}
	if infra.Limiter, err = infraredis.NewRedisRateLimiter(rdb, cfg.RateBudgets()); err != nil {
		return nil, err
	}

	if infra.Store, err = NewObjectStore(cfg); err != nil {
		return nil, err
	}

	if infra.Publisher, err = NewPublisher(cfg, logger); err != nil {
		return nil, err
	}

	ok = true
	return infra, nil
}

// Close releases every connection that was opened. Safe on a partially opened Infra.
func (i *Infra) Close() error {
	if i == nil {
		return nil
	}

	var errs []error
	if i.Publisher != nil {
		errs = append(errs, i.Publisher.Close())
	}
	if i.Redis != nil {
		errs = append(errs, i.Redis.Close())
	}
	if i.SQL != nil {
		errs = append(errs, i.SQL.Close())
	}
	return errors.Join(errs...)
}

// Pipeline builds the commit pipeline on top of the opened connections.
func (i *Infra) Pipeline() (*service.CommitPipeline, error) {
	pipeline, err := service.NewCommitPipeline(i.Store, i.Documents, i.Orphans, i.Publisher, i.Limiter, i.logger)
	if err != nil {
		return nil, err
	}
	pipeline.SetMetrics(i.Metrics)
	return pipeline, nil
}

// Orchestrator builds a batch orchestrator bounded to concurrency in-flight commits.
func (i *Infra) Orchestrator(concurrency int) (*service.Orchestrator, error) {
	pipeline, err := i.Pipeline()
	if err != nil {
		return nil, err
	}
	return service.NewOrchestrator(pipeline, concurrency, i.logger)
}

// Sweeper builds the orphan sweeper over the registry, metadata store and object store.
func (i *Infra) Sweeper(cfg *config.Config) (*service.OrphanSweeper, error) {
	sweeper, err := service.NewOrphanSweeper(i.Orphans, i.Documents, i.Store, cfg.OrphanSweepEvery(), 0, i.logger)
	if err != nil {
		return nil, err
	}
	sweeper.SetMetrics(i.Metrics)
	return sweeper, nil
}

func NewObjectStore(cfg *config.Config) (storage.ObjectStore, error) {
	switch cfg.StorageBackend {
	case config.StorageBackendSupabase:
		store, err := storage.NewSupabaseStore(cfg.SupabaseURL, cfg.StorageBucket, cfg.SupabaseServiceKey)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StorageBackendFilesystem, "":
		store, err := storage.NewFilesystemStore(cfg.StorageDir)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend)
	}
}

// NewPublisher returns a RabbitMQ publisher, or a no-op one when RABBITMQ_URL is empty.
func NewPublisher(cfg *config.Config, logger *zap.Logger) (queue.Publisher, error) {
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		logger.Info("RABBITMQ_URL not set, upload events disabled")
		return queue.NopPublisher{}, nil
	}

	client, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	return queue.NewRabbitMQPublisher(client), nil
}

// NewResolver prefers the Supabase auth api and falls back to a pre-shared static token.
func NewResolver(cfg *config.Config) (identity.Resolver, error) {
	if cfg.SupabaseURL != "" && cfg.SupabaseAnonKey != "" {
		resolver, err := identity.NewSupabaseResolver(cfg.SupabaseURL, cfg.SupabaseAnonKey)
		if err != nil {
			return nil, err
		}
		return resolver, nil
	}
	if cfg.StaticAuthToken != "" {
		return identity.StaticResolver{
			Token: cfg.StaticAuthToken,
			Owner: domain.Owner{ID: cfg.StaticAuthOwner},
		}, nil
	}
	return nil, fmt.Errorf("no identity provider configured: set SUPABASE_URL and SUPABASE_ANON_KEY or STATIC_AUTH_TOKEN and STATIC_AUTH_OWNER")
}

// Policy is the ingestion policy with the configured size ceiling.
func Policy(cfg *config.Config) domain.IngestionPolicy {
	policy := domain.DefaultIngestionPolicy()
	policy.MaxFileSize = cfg.MaxFileSizeBytes
	return policy
}
