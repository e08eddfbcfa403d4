package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/docdrop/internal/app"
	"github.com/kursadbilgin/docdrop/internal/config"
	"github.com/kursadbilgin/docdrop/internal/handler"
	"github.com/kursadbilgin/docdrop/internal/observability"
	"github.com/kursadbilgin/docdrop/internal/service"
	"github.com/kursadbilgin/docdrop/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 15 * time.Second
	// Multipart batches carry whole files in memory.
	bodyLimitSlack = 1 << 20
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	infra, err := app.Open(cfg, logger)
	if err != nil {
		logger.Fatal("infrastructure initialization failed", zap.Error(err))
	}
	defer infra.Close() //nolint:errcheck

	resolver, err := app.NewResolver(cfg)
	if err != nil {
		logger.Fatal("identity initialization failed", zap.Error(err))
	}

	orchestrator, err := infra.Orchestrator(cfg.WorkerConcurrency)
	if err != nil {
		logger.Fatal("orchestrator initialization failed", zap.Error(err))
	}

	sessions, err := service.NewSessionService(orchestrator, app.Policy(cfg), cfg.SessionTTL(), logger)
	if err != nil {
		logger.Fatal("session service initialization failed", zap.Error(err))
	}
	defer sessions.Close()

	sweeper, err := infra.Sweeper(cfg)
	if err != nil {
		logger.Fatal("orphan sweeper initialization failed", zap.Error(err))
	}

	server := fiber.New(fiber.Config{
		AppName:               "docdrop",
		ErrorHandler:          transport.ErrorHandler(logger),
		BodyLimit:             bodyLimit(cfg.MaxFileSizeBytes),
		DisableStartupMessage: true,
	})
	server.Use(requestid.New())
	server.Use(handler.RequestContext())
	server.Use(infra.Metrics.HTTPMiddleware())
	server.Get("/metrics", adaptor.HTTPHandler(infra.Metrics.Handler()))
	handler.RegisterHealthRoutes(server, handler.PostgresCheck(infra.SQL), handler.RedisCheck(infra.Redis))
	if err := handler.RegisterUploadRoutes(server, sessions, resolver); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sessions.Start(gctx) })
	g.Go(func() error { return sweeper.Start(gctx) })
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		logger.Info("docdrop api started", zap.Int("port", cfg.APIPort))
		if err := server.Listen(addr); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return server.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		logger.Error("docdrop api stopped with error", zap.Error(err))
		return
	}
	logger.Info("docdrop api stopped")
}

// bodyLimit sizes the request cap to the per-file ceiling. 0 means unlimited files, so fiber's default is kept.
func bodyLimit(maxFileSize int64) int {
	if maxFileSize <= 0 {
		return fiber.DefaultBodyLimit
	}
	return int(maxFileSize) + bodyLimitSlack
}
