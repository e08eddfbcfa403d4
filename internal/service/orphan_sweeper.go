package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/docdrop/internal/observability"
	"github.com/kursadbilgin/docdrop/internal/repository"
	"github.com/kursadbilgin/docdrop/internal/storage"
	"go.uber.org/zap"
)

const (
	defaultOrphanSweepInterval = time.Minute
	defaultOrphanSweepLimit    = 100
)

// OrphanStore lists and forgets recorded orphan paths.
type OrphanStore interface {
	List(ctx context.Context, limit int) ([]string, error)
	Forget(ctx context.Context, objectPath string) error
}

// OrphanSweeper periodically deletes objects whose metadata write failed.
type OrphanSweeper struct {
	orphans   OrphanStore
	documents repository.DocumentRepository
	store     storage.ObjectStore
	logger    *zap.Logger
	metrics   *observability.Metrics
	interval  time.Duration
	limit     int
}

func NewOrphanSweeper(
	orphans OrphanStore,
	documents repository.DocumentRepository,
	store storage.ObjectStore,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*OrphanSweeper, error) {
	if orphans == nil {
		return nil, fmt.Errorf("orphan store is required")
	}
	if documents == nil {
		return nil, fmt.Errorf("document repository is required")
	}
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if interval <= 0 {
		interval = defaultOrphanSweepInterval
	}
	if limit <= 0 {
		limit = defaultOrphanSweepLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OrphanSweeper{
		orphans:   orphans,
		documents: documents,
		store:     store,
		logger:    logger,
		interval:  interval,
		limit:     limit,
	}, nil
}

func (s *OrphanSweeper) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *OrphanSweeper) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("orphan sweeper initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("orphan sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce handles up to limit recorded orphans and returns how many objects were deleted.
// Paths that turn out to have a metadata row are forgotten without touching the object.
func (s *OrphanSweeper) SweepOnce(ctx context.Context) (int, error) {
	paths, err := s.orphans.List(ctx, s.limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list orphaned objects: %w", err)
	}

	swept := 0
	for _, objectPath := range paths {
		if ctx.Err() != nil {
			break
		}

		exists, err := s.documents.ExistsByPath(ctx, objectPath)
		if err != nil {
			s.logger.Error("failed to check metadata for orphan",
				zap.String("path", objectPath),
				zap.Error(err),
			)
			continue
		}

		if !exists {
			if err := s.store.Delete(ctx, objectPath); err != nil {
				s.logger.Error("failed to delete orphaned object",
					zap.String("path", objectPath),
					zap.Bool("transient", storage.IsTransient(err)),
					zap.Error(err),
				)
				continue
			}
			swept++
		}

		if err := s.orphans.Forget(ctx, objectPath); err != nil {
			s.logger.Error("failed to forget orphan",
				zap.String("path", objectPath),
				zap.Error(err),
			)
		}
	}

	if swept > 0 {
		s.logger.Info("orphaned objects deleted", zap.Int("count", swept))
	}
	s.metrics.AddOrphansSwept(swept)

	return swept, nil
}
