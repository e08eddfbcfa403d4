package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/kursadbilgin/docdrop/internal/app"
	"github.com/kursadbilgin/docdrop/internal/config"
	"github.com/kursadbilgin/docdrop/internal/domain"
	"github.com/kursadbilgin/docdrop/internal/identity"
	"github.com/kursadbilgin/docdrop/internal/infra/postgresql"
	"github.com/kursadbilgin/docdrop/internal/infra/postgresql/migrations"
	"github.com/kursadbilgin/docdrop/internal/observability"
	"github.com/kursadbilgin/docdrop/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type orphanSweeper interface {
	SweepOnce(ctx context.Context) (int, error)
}

// uploader is everything the upload command needs from the running infrastructure.
type uploader struct {
	runner   service.BatchRunner
	resolver identity.Resolver
	policy   domain.IngestionPolicy
	close    func() error
}

// environment builds the config, logger and infrastructure a command needs.
// Tests swap the functions out.
type environment struct {
	loadConfig   func() (*config.Config, error)
	newLogger    func(level string) (*zap.Logger, error)
	migrate      func(cfg *config.Config, logger *zap.Logger) error
	openSweeper  func(cfg *config.Config, logger *zap.Logger) (orphanSweeper, func() error, error)
	openUploader func(cfg *config.Config, logger *zap.Logger, concurrency int) (*uploader, error)
}

func defaultEnvironment() *environment {
	return &environment{
		loadConfig:   config.Load,
		newLogger:    observability.NewLogger,
		migrate:      migrateDatabase,
		openSweeper:  openSweeper,
		openUploader: openUploader,
	}
}

func (e *environment) setup() (*config.Config, *zap.Logger, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := e.newLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

func newRootCmd(env *environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "docdrop",
		Short:         "Batch document upload client",
		Long:          "Upload batches of documents to the configured object store and record their metadata",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newUploadCmd(env))
	cmd.AddCommand(newSweepCmd(env))
	cmd.AddCommand(newMigrateCmd(env))

	return cmd
}

// Execute runs the cli until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return newRootCmd(defaultEnvironment()).ExecuteContext(ctx)
}

func migrateDatabase(cfg *config.Config, logger *zap.Logger) error {
	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, postgresql.DefaultPoolConfig(), logger)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	return migrations.Migrate(db)
}

func openSweeper(cfg *config.Config, logger *zap.Logger) (orphanSweeper, func() error, error) {
	infra, err := app.Open(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	sweeper, err := infra.Sweeper(cfg)
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}
	return sweeper, infra.Close, nil
}

func openUploader(cfg *config.Config, logger *zap.Logger, concurrency int) (*uploader, error) {
	resolver, err := app.NewResolver(cfg)
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = cfg.WorkerConcurrency
	}

	infra, err := app.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	orchestrator, err := infra.Orchestrator(concurrency)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}

	return &uploader{
		runner:   orchestrator,
		resolver: resolver,
		policy:   app.Policy(cfg),
		close:    infra.Close,
	}, nil
}
