package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/docdrop/internal/domain"
	"github.com/kursadbilgin/docdrop/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// Committer commits a single file. CommitPipeline is the production implementation.
type Committer interface {
	Commit(ctx context.Context, handle domain.FileHandle, owner domain.Owner, progress func(int)) CommitResult
}

// Orchestrator drives every Idle item of a tracker to a terminal state on a bounded worker pool.
type Orchestrator struct {
	committer   Committer
	logger      *zap.Logger
	concurrency int
}

func NewOrchestrator(committer Committer, concurrency int, logger *zap.Logger) (*Orchestrator, error) {
	if committer == nil {
		return nil, fmt.Errorf("committer is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		committer:   committer,
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

// RunBatch claims the Idle items in insertion order and commits them.
// Item failures are recorded on the item and never stop the others. It returns once every
// claimed item is terminal; the only error is a missing owner, in which case nothing is attempted.
func (o *Orchestrator) RunBatch(ctx context.Context, tracker *Tracker, owner domain.Owner) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if tracker == nil {
		return fmt.Errorf("%w: tracker is required", domain.ErrValidation)
	}
	if !owner.IsAuthenticated() {
		return fmt.Errorf("%w: an owner is required to upload", domain.ErrUnauthenticated)
	}

	ctx = observability.WithOwnerID(ctx, owner.ID)
	logger := observability.WithContextLogger(o.logger, ctx)

	var claimed []int
	for _, index := range tracker.IdleIndices() {
		if tracker.Claim(index) {
			claimed = append(claimed, index)
		}
	}
	if len(claimed) == 0 {
		return nil
	}

	logger.Info("batch upload started",
		zap.Int("items", len(claimed)),
		zap.Int("concurrency", o.concurrency),
	)

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for _, index := range claimed {
		item, err := tracker.Item(index)
		if err != nil {
			logger.Error("claimed item disappeared", zap.Int("index", index), zap.Error(err))
			continue
		}

		g.Go(func() error {
			o.runItem(ctx, tracker, owner, item, logger)
			return nil
		})
	}
	_ = g.Wait()

	batch := tracker.Snapshot()
	counts := batch.Counts()
	logger.Info("batch upload finished",
		zap.Int("succeeded", counts[domain.ItemStateSuccess]),
		zap.Int("failed", counts[domain.ItemStateError]),
	)

	return nil
}

func (o *Orchestrator) runItem(ctx context.Context, tracker *Tracker, owner domain.Owner, item domain.FileItem, logger *zap.Logger) {
	itemLogger := logger.With(zap.Int("index", item.Index), zap.String("file", item.Handle.Name))

	result := o.committer.Commit(ctx, item.Handle, owner, func(progress int) {
		if err := tracker.Transition(item.Index, domain.ItemStateUploading, progress, ""); err != nil {
			itemLogger.Debug("progress update rejected", zap.Int("progress", progress), zap.Error(err))
		}
	})

	if result.Err != nil {
		detail := result.Err.Error()
		if detail == "" {
			detail = "upload failed"
		}
		if err := tracker.Transition(item.Index, domain.ItemStateError, domain.ProgressNone, detail); err != nil {
			itemLogger.Error("failed to mark item as failed", zap.Error(err))
		}
		itemLogger.Warn("item upload failed", zap.Error(result.Err))
		return
	}

	if err := tracker.Annotate(item.Index, result.Path, result.DocumentID); err != nil {
		itemLogger.Error("failed to annotate item", zap.Error(err))
	}
	if err := tracker.Transition(item.Index, domain.ItemStateSuccess, domain.ProgressDone, ""); err != nil {
		itemLogger.Error("failed to mark item as uploaded", zap.Error(err))
		return
	}
	itemLogger.Info("item uploaded",
		zap.String("path", result.Path),
		zap.String("documentId", result.DocumentID),
	)
}
