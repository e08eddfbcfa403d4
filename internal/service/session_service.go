package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/docdrop/internal/domain"
	"github.com/kursadbilgin/docdrop/internal/observability"
	"go.uber.org/zap"
)

const (
	defaultSessionTTL   = time.Hour
	minSessionReapEvery = time.Second
)

// BatchRunner drives a tracker to completion. Orchestrator is the production implementation.
type BatchRunner interface {
	RunBatch(ctx context.Context, tracker *Tracker, owner domain.Owner) error
}

// Session is one owner's upload batch kept in memory between requests.
type Session struct {
	ID        string
	OwnerID   string
	CreatedAt time.Time
	Tracker   *Tracker

	running      atomic.Bool
	lastActivity atomic.Int64
}

// Running reports whether a batch run is in progress.
func (s *Session) Running() bool {
	return s.running.Load()
}

func (s *Session) touch(now time.Time) {
	s.lastActivity.Store(now.UnixNano())
}

// SessionService keeps per-owner upload sessions and starts batch runs in the background.
type SessionService struct {
	runner BatchRunner
	policy domain.IngestionPolicy
	logger *zap.Logger
	ttl    time.Duration
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool

	runCtx    context.Context
	cancelAll context.CancelFunc
	runs      sync.WaitGroup
}

func NewSessionService(runner BatchRunner, policy domain.IngestionPolicy, ttl time.Duration, logger *zap.Logger) (*SessionService, error) {
	if runner == nil {
		return nil, fmt.Errorf("batch runner is required")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	return &SessionService{
		runner:    runner,
		policy:    policy,
		logger:    logger,
		ttl:       ttl,
		now:       time.Now,
		sessions:  make(map[string]*Session),
		runCtx:    runCtx,
		cancelAll: cancel,
	}, nil
}

func (s *SessionService) Create(ctx context.Context, owner domain.Owner) (*Session, error) {
	if !owner.IsAuthenticated() {
		return nil, fmt.Errorf("%w: owner is required", domain.ErrUnauthenticated)
	}

	now := s.now()
	session := &Session{
		ID:        uuid.NewString(),
		OwnerID:   owner.ID,
		CreatedAt: now.UTC(),
		Tracker:   NewTracker(),
	}
	session.touch(now)

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	observability.WithContextLogger(s.logger, ctx).Info("upload session created", zap.String("sessionId", session.ID))
	return session, nil
}

// Get returns the owner's session. Sessions of other owners are reported as not found.
func (s *SessionService) Get(_ context.Context, owner domain.Owner, sessionID string) (*Session, error) {
	if !owner.IsAuthenticated() {
		return nil, fmt.Errorf("%w: owner is required", domain.ErrUnauthenticated)
	}

	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok || session.OwnerID != owner.ID {
		return nil, fmt.Errorf("%w: upload session %s", domain.ErrNotFound, sessionID)
	}

	session.touch(s.now())
	return session, nil
}

// AddFiles admits the handles that pass the ingestion policy and reports the rest.
func (s *SessionService) AddFiles(ctx context.Context, owner domain.Owner, sessionID string, handles []domain.FileHandle) ([]int, []domain.Rejection, error) {
	session, err := s.Get(ctx, owner, sessionID)
	if err != nil {
		return nil, nil, err
	}

	accepted, rejected := s.policy.Filter(handles)
	indices := session.Tracker.Add(accepted...)
	if len(rejected) > 0 {
		observability.WithContextLogger(s.logger, ctx).Info("files rejected at ingestion",
			zap.String("sessionId", sessionID),
			zap.Int("rejected", len(rejected)),
		)
	}
	return indices, rejected, nil
}

func (s *SessionService) RemoveFile(ctx context.Context, owner domain.Owner, sessionID string, index int) error {
	session, err := s.Get(ctx, owner, sessionID)
	if err != nil {
		return err
	}
	return session.Tracker.Remove(index)
}

func (s *SessionService) ResetFile(ctx context.Context, owner domain.Owner, sessionID string, index int) error {
	session, err := s.Get(ctx, owner, sessionID)
	if err != nil {
		return err
	}
	return session.Tracker.Reset(index)
}

// Run starts a background batch run for the session's Idle items.
// The run outlives the calling request and is cancelled only by Close.
// Once Close has begun, Run fails with ErrConflict.
func (s *SessionService) Run(ctx context.Context, owner domain.Owner, sessionID string) error {
	session, err := s.Get(ctx, owner, sessionID)
	if err != nil {
		return err
	}
	if session.Tracker.Snapshot().IdleCount() == 0 {
		return fmt.Errorf("%w: no files waiting to be uploaded", domain.ErrValidation)
	}

	// runs.Add must not race with the Wait in Close.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("%w: upload sessions are shutting down", domain.ErrConflict)
	}
	if !session.running.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return fmt.Errorf("%w: upload session %s is already running", domain.ErrConflict, sessionID)
	}
	s.runs.Add(1)
	s.mu.Unlock()

	runCtx := s.runCtx
	if correlationID, ok := observability.CorrelationIDFromContext(ctx); ok {
		runCtx = observability.WithCorrelationID(runCtx, correlationID)
	}

	go func() {
		defer s.runs.Done()
		defer session.running.Store(false)
		defer func() { session.touch(s.now()) }()

		if err := s.runner.RunBatch(runCtx, session.Tracker, owner); err != nil {
			observability.WithContextLogger(s.logger, runCtx).Error("batch run failed",
				zap.String("sessionId", sessionID),
				zap.Error(err),
			)
		}
	}()

	return nil
}

func (s *SessionService) Snapshot(ctx context.Context, owner domain.Owner, sessionID string) (domain.Batch, error) {
	session, err := s.Get(ctx, owner, sessionID)
	if err != nil {
		return domain.Batch{}, err
	}
	return session.Tracker.Snapshot(), nil
}

func (s *SessionService) Delete(ctx context.Context, owner domain.Owner, sessionID string) error {
	session, err := s.Get(ctx, owner, sessionID)
	if err != nil {
		return err
	}
	if session.Running() {
		return fmt.Errorf("%w: upload session %s is running", domain.ErrConflict, sessionID)
	}

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}

// Start reaps idle sessions until ctx is done.
func (s *SessionService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	interval := s.ttl / 2
	if interval < minSessionReapEvery {
		interval = minSessionReapEvery
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Reap(); n > 0 {
				s.logger.Info("expired upload sessions reaped", zap.Int("count", n))
			}
		}
	}
}

// Reap drops sessions untouched for longer than the ttl. Running sessions are kept.
func (s *SessionService) Reap() int {
	cutoff := s.now().Add(-s.ttl).UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()

	reaped := 0
	for id, session := range s.sessions {
		if session.Running() || session.lastActivity.Load() > cutoff {
			continue
		}
		delete(s.sessions, id)
		reaped++
	}
	return reaped
}

// Close cancels in-flight runs and waits for them to finish.
func (s *SessionService) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancelAll()
	s.runs.Wait()
}
