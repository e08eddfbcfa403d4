package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/kursadbilgin/docdrop/internal/domain"
	"github.com/kursadbilgin/docdrop/internal/observability"
	"github.com/kursadbilgin/docdrop/internal/queue"
	"github.com/kursadbilgin/docdrop/internal/ratelimit"
	"github.com/kursadbilgin/docdrop/internal/repository"
	"github.com/kursadbilgin/docdrop/internal/storage"
	"go.uber.org/zap"
)

const (
	phaseStorage  = "storage"
	phaseMetadata = "metadata"

	defaultContentType  = "application/octet-stream"
	orphanRecordTimeout = 5 * time.Second
)

// OrphanRecorder remembers objects whose metadata row was never written.
type OrphanRecorder interface {
	Record(ctx context.Context, objectPath string) error
}

// StoreError reports a failed metadata write. The object at Path is already stored.
type StoreError struct {
	Path      string
	Transient bool
	Cause     error
}

func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("metadata write failed for %s: %v", e.Path, e.Cause)
}

func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// CommitResult is the outcome of one item's commit.
type CommitResult struct {
	Path       string
	DocumentID string
	Err        error
}

// CommitPipeline writes one file as an object and then as a metadata row.
// It never retries; every failure is returned with its cause.
type CommitPipeline struct {
	store       storage.ObjectStore
	documents   repository.DocumentRepository
	orphans     OrphanRecorder
	publisher   queue.Publisher
	rateLimiter ratelimit.RateLimiter
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time

	stampMu   sync.Mutex
	lastStamp int64
}

func NewCommitPipeline(
	store storage.ObjectStore,
	documents repository.DocumentRepository,
	orphans OrphanRecorder,
	publisher queue.Publisher,
	rateLimiter ratelimit.RateLimiter,
	logger *zap.Logger,
) (*CommitPipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if documents == nil {
		return nil, fmt.Errorf("document repository is required")
	}
	if publisher == nil {
		publisher = queue.NopPublisher{}
	}
	if rateLimiter == nil {
		rateLimiter = ratelimit.Unlimited{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CommitPipeline{
		store:       store,
		documents:   documents,
		orphans:     orphans,
		publisher:   publisher,
		rateLimiter: rateLimiter,
		logger:      logger,
		now:         time.Now,
	}, nil
}

func (p *CommitPipeline) SetMetrics(metrics *observability.Metrics) {
	if p == nil {
		return
	}
	p.metrics = metrics
}

// Commit stores handle for owner, reporting 10, 60 and 100 through progress as the phases complete.
func (p *CommitPipeline) Commit(ctx context.Context, handle domain.FileHandle, owner domain.Owner, progress func(int)) CommitResult {
	if ctx == nil {
		ctx = context.Background()
	}
	if progress == nil {
		progress = func(int) {}
	}
	if !owner.IsAuthenticated() {
		return CommitResult{Err: fmt.Errorf("%w: owner is required", domain.ErrUnauthenticated)}
	}
	if handle.Source == nil {
		return CommitResult{Err: fmt.Errorf("%w: %s has no content", domain.ErrValidation, handle.Name)}
	}

	base, err := baseName(handle.Name)
	if err != nil {
		return CommitResult{Err: err}
	}
	objectPath, err := p.ObjectPath(owner, base)
	if err != nil {
		return CommitResult{Err: err}
	}
	logger := observability.WithContextLogger(p.logger, ctx).With(zap.String("path", objectPath))

	p.metrics.IncCommitsInFlight()
	defer p.metrics.DecCommitsInFlight()

	contentType := strings.TrimSpace(handle.ContentType)
	if contentType == "" {
		contentType = defaultContentType
	}

	if err := p.putObject(ctx, owner.ID, objectPath, handle, contentType, progress); err != nil {
		p.metrics.IncUploadFailed(phaseStorage)
		logger.Warn("object write failed", zap.Error(err))
		return CommitResult{Path: objectPath, Err: err}
	}
	progress(domain.ProgressObjectSaved)

	doc := &domain.Document{
		OwnerID:  owner.ID,
		Filename: base,
		Path:     objectPath,
		Size:     handle.Size,
		MimeType: contentType,
		Status:   domain.DocumentStatusUploaded,
	}
	documentID, err := p.insertDocument(ctx, doc)
	if err != nil {
		p.metrics.IncUploadFailed(phaseMetadata)
		logger.Warn("metadata write failed, object left orphaned", zap.Error(err))
		p.recordOrphan(ctx, objectPath, logger)
		return CommitResult{Path: objectPath, Err: err}
	}

	p.publishUploaded(ctx, doc, logger)
	p.metrics.IncUploadCommitted(handle.Extension())
	progress(domain.ProgressDone)

	return CommitResult{Path: objectPath, DocumentID: documentID}
}

// ObjectPath builds {ownerId}/{millis}-{baseName}. The timestamp strictly increases per pipeline,
// so two submissions of the same name never share a path.
func (p *CommitPipeline) ObjectPath(owner domain.Owner, name string) (string, error) {
	base, err := baseName(name)
	if err != nil {
		return "", err
	}
	ownerID := strings.TrimSpace(owner.ID)
	if ownerID == "" || strings.ContainsAny(ownerID, "/\\") {
		return "", fmt.Errorf("%w: invalid owner id %q", domain.ErrValidation, owner.ID)
	}

	return fmt.Sprintf("%s/%d-%s", ownerID, p.nextStamp(), base), nil
}

// baseName strips any client-side directory from name.
func baseName(name string) (string, error) {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "" || base == "." || base == "/" || base == ".." {
		return "", fmt.Errorf("%w: invalid file name %q", domain.ErrValidation, name)
	}
	return base, nil
}

func (p *CommitPipeline) nextStamp() int64 {
	p.stampMu.Lock()
	defer p.stampMu.Unlock()

	stamp := p.now().UnixMilli()
	if stamp <= p.lastStamp {
		stamp = p.lastStamp + 1
	}
	p.lastStamp = stamp
	return stamp
}

func (p *CommitPipeline) putObject(ctx context.Context, ownerID, objectPath string, handle domain.FileHandle, contentType string, progress func(int)) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("upload canceled before object write: %w", context.Cause(ctx))
	}
	progress(domain.ProgressStarted)

	if err := p.rateLimiter.Wait(ctx, ratelimit.BackendStorage, ownerID); err != nil {
		return fmt.Errorf("storage rate limit wait failed: %w", err)
	}

	body, err := handle.Source.Open()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", handle.Name, err)
	}
	defer body.Close()

	start := p.now()
	err = p.store.Put(ctx, objectPath, body, handle.Size, contentType)
	p.metrics.ObserveCommitPhase(phaseStorage, p.now().Sub(start))
	return err
}

func (p *CommitPipeline) insertDocument(ctx context.Context, doc *domain.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &StoreError{Path: doc.Path, Cause: fmt.Errorf("upload canceled before metadata write: %w", context.Cause(ctx))}
	}
	if err := p.rateLimiter.Wait(ctx, ratelimit.BackendMetadata, doc.OwnerID); err != nil {
		return "", &StoreError{Path: doc.Path, Transient: true, Cause: fmt.Errorf("metadata rate limit wait failed: %w", err)}
	}

	start := p.now()
	id, err := p.documents.Insert(ctx, doc)
	p.metrics.ObserveCommitPhase(phaseMetadata, p.now().Sub(start))
	if err != nil {
		transient := !errors.Is(err, domain.ErrValidation) && !errors.Is(err, domain.ErrConflict)
		return "", &StoreError{Path: doc.Path, Transient: transient, Cause: err}
	}
	return id, nil
}

func (p *CommitPipeline) recordOrphan(ctx context.Context, objectPath string, logger *zap.Logger) {
	if p.orphans == nil {
		return
	}

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), orphanRecordTimeout)
	defer cancel()

	if err := p.orphans.Record(recordCtx, objectPath); err != nil {
		logger.Error("failed to record orphaned object", zap.Error(err))
		return
	}
	p.metrics.IncOrphanRecorded()
}

func (p *CommitPipeline) publishUploaded(ctx context.Context, doc *domain.Document, logger *zap.Logger) {
	msg := queue.DocumentUploadedMessage{
		DocumentID: doc.ID,
		OwnerID:    doc.OwnerID,
		Path:       doc.Path,
		Filename:   doc.Filename,
		Size:       doc.Size,
		MimeType:   doc.MimeType,
		UploadedAt: doc.CreatedAt,
	}
	if correlationID, ok := observability.CorrelationIDFromContext(ctx); ok {
		msg.CorrelationID = correlationID
	}

	if err := p.publisher.Publish(ctx, queue.DocumentsUploadedQueue, msg); err != nil {
		p.metrics.IncEventPublishFailed()
		logger.Warn("failed to publish document event", zap.String("documentId", doc.ID), zap.Error(err))
	}
}
