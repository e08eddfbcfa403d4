package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kursadbilgin/docdrop/internal/domain"
	"github.com/kursadbilgin/docdrop/internal/observability"
	"go.uber.org/zap"
)

func TestSessionServiceLifecycle(t *testing.T) {
	t.Parallel()

	runner := newTestRunner(t)
	svc := newTestSessionService(t, runner, time.Hour)

	ctx := context.Background()
	session, err := svc.Create(ctx, testOwner)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	indices, rejected, err := svc.AddFiles(ctx, testOwner, session.ID, []domain.FileHandle{
		handle("a.pdf", 1),
		handle("virus.exe", 1),
		handle("b.csv", 1),
	})
	if err != nil {
		t.Fatalf("AddFiles() error = %v", err)
	}
	if len(indices) != 2 {
		t.Fatalf("accepted = %v, want 2 items", indices)
	}
	if len(rejected) != 1 || rejected[0].Name != "virus.exe" {
		t.Fatalf("rejected = %+v, want virus.exe", rejected)
	}

	if err := svc.RemoveFile(ctx, testOwner, session.ID, indices[1]); err != nil {
		t.Fatalf("RemoveFile() error = %v", err)
	}

	ctx = observability.WithCorrelationID(ctx, "req-42")
	if err := svc.Run(ctx, testOwner, session.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	svc.Close()

	batch, err := svc.Snapshot(ctx, testOwner, session.ID)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if !batch.Complete() || len(batch.Items) != 1 {
		t.Fatalf("batch = %+v, want one complete item", batch)
	}
	if got := runner.correlationID(); got != "req-42" {
		t.Fatalf("run correlation id = %q, want req-42", got)
	}

	if err := svc.Delete(ctx, testOwner, session.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := svc.Get(ctx, testOwner, session.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestSessionServiceOwnerIsolation(t *testing.T) {
	t.Parallel()

	svc := newTestSessionService(t, newTestRunner(t), time.Hour)
	ctx := context.Background()

	session, err := svc.Create(ctx, testOwner)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	other := domain.Owner{ID: "owner-2"}
	if _, err := svc.Get(ctx, other, session.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get() by other owner error = %v, want ErrNotFound", err)
	}
	if _, err := svc.Create(ctx, domain.Owner{}); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("Create() without owner error = %v, want ErrUnauthenticated", err)
	}
	if _, err := svc.Get(ctx, domain.Owner{}, session.ID); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("Get() without owner error = %v, want ErrUnauthenticated", err)
	}
}

func TestSessionServiceRunRequiresIdleItems(t *testing.T) {
	t.Parallel()

	svc := newTestSessionService(t, newTestRunner(t), time.Hour)
	ctx := context.Background()

	session, _ := svc.Create(ctx, testOwner)
	if err := svc.Run(ctx, testOwner, session.ID); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Run() on empty session error = %v, want ErrValidation", err)
	}
}

func TestSessionServiceRejectsConcurrentRun(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})
	runner := &fakeRunner{
		runFn: func(ctx context.Context, tracker *Tracker, owner domain.Owner) error {
			close(started)
			<-release
			return nil
		},
	}
	svc := newTestSessionService(t, runner, time.Hour)
	ctx := context.Background()

	session, _ := svc.Create(ctx, testOwner)
	svc.AddFiles(ctx, testOwner, session.ID, []domain.FileHandle{handle("a.pdf", 1), handle("b.pdf", 1)})

	if err := svc.Run(ctx, testOwner, session.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	<-started

	if err := svc.Run(ctx, testOwner, session.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second Run() error = %v, want ErrConflict", err)
	}
	if err := svc.Delete(ctx, testOwner, session.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Delete() while running error = %v, want ErrConflict", err)
	}
	if n := svc.Reap(); n != 0 {
		t.Fatalf("Reap() removed %d running sessions", n)
	}

	close(release)
	svc.Close()
	if session.Running() {
		t.Fatal("session should not be running after Close")
	}
}

func TestSessionServiceReap(t *testing.T) {
	t.Parallel()

	svc := newTestSessionService(t, newTestRunner(t), time.Minute)
	now := time.Unix(1_700_000_000, 0)
	svc.now = func() time.Time { return now }

	ctx := context.Background()
	stale, _ := svc.Create(ctx, testOwner)
	now = now.Add(50 * time.Second)
	fresh, _ := svc.Create(ctx, testOwner)

	now = now.Add(20 * time.Second)
	if n := svc.Reap(); n != 1 {
		t.Fatalf("Reap() = %d, want 1", n)
	}
	if _, err := svc.Get(ctx, testOwner, stale.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("stale session still present: %v", err)
	}
	if _, err := svc.Get(ctx, testOwner, fresh.ID); err != nil {
		t.Fatalf("fresh session reaped: %v", err)
	}
}

func TestSessionServiceCloseCancelsRuns(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	runner := &fakeRunner{
		runFn: func(ctx context.Context, tracker *Tracker, owner domain.Owner) error {
			close(started)
			<-ctx.Done()
			return nil
		},
	}
	svc := newTestSessionService(t, runner, time.Hour)
	ctx := context.Background()

	session, _ := svc.Create(ctx, testOwner)
	svc.AddFiles(ctx, testOwner, session.ID, []domain.FileHandle{handle("a.pdf", 1)})
	if err := svc.Run(ctx, testOwner, session.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	<-started

	done := make(chan struct{})
	go func() {
		svc.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close() did not cancel the running batch")
	}
}

func TestSessionServiceRunAfterCloseConflicts(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{
		runFn: func(ctx context.Context, tracker *Tracker, owner domain.Owner) error {
			t.Error("batch started after Close")
			return nil
		},
	}
	svc := newTestSessionService(t, runner, time.Hour)
	ctx := context.Background()

	session, _ := svc.Create(ctx, testOwner)
	svc.AddFiles(ctx, testOwner, session.ID, []domain.FileHandle{handle("a.pdf", 1)})

	svc.Close()
	if err := svc.Run(ctx, testOwner, session.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Run() after Close error = %v, want ErrConflict", err)
	}
	if session.Running() {
		t.Fatal("session should not be marked running after a refused Run")
	}
	svc.Close()
}

func TestSessionServiceCloseWaitsForEveryAcceptedRun(t *testing.T) {
	t.Parallel()

	var finished atomic.Int64
	runner := &fakeRunner{
		runFn: func(ctx context.Context, tracker *Tracker, owner domain.Owner) error {
			<-ctx.Done()
			finished.Add(1)
			return nil
		},
	}
	svc := newTestSessionService(t, runner, time.Hour)
	ctx := context.Background()

	const sessions = 32
	ids := make([]string, 0, sessions)
	for i := 0; i < sessions; i++ {
		session, _ := svc.Create(ctx, testOwner)
		svc.AddFiles(ctx, testOwner, session.ID, []domain.FileHandle{handle("a.pdf", 1)})
		ids = append(ids, session.ID)
	}

	var accepted atomic.Int64
	var callers sync.WaitGroup
	start := make(chan struct{})
	for _, id := range ids {
		callers.Add(1)
		go func(id string) {
			defer callers.Done()
			<-start
			err := svc.Run(ctx, testOwner, id)
			switch {
			case err == nil:
				accepted.Add(1)
			case !errors.Is(err, domain.ErrConflict):
				t.Errorf("Run() error = %v, want nil or ErrConflict", err)
			}
		}(id)
	}

	close(start)
	svc.Close()
	doneAtClose := finished.Load()
	callers.Wait()

	if got := accepted.Load(); got != doneAtClose {
		t.Fatalf("accepted runs = %d, finished before Close returned = %d", got, doneAtClose)
	}
}

func newTestSessionService(t *testing.T, runner BatchRunner, ttl time.Duration) *SessionService {
	t.Helper()

	svc, err := NewSessionService(runner, domain.DefaultIngestionPolicy(), ttl, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSessionService() error = %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

type fakeRunner struct {
	runFn func(ctx context.Context, tracker *Tracker, owner domain.Owner) error
}

func (f *fakeRunner) RunBatch(ctx context.Context, tracker *Tracker, owner domain.Owner) error {
	return f.runFn(ctx, tracker, owner)
}

type recordingRunner struct {
	*Orchestrator

	mu            sync.Mutex
	lastRequestID string
}

func newTestRunner(t *testing.T) *recordingRunner {
	t.Helper()
	return &recordingRunner{Orchestrator: newTestOrchestrator(t, &fakeCommitter{}, 2)}
}

func (r *recordingRunner) RunBatch(ctx context.Context, tracker *Tracker, owner domain.Owner) error {
	if id, ok := observability.CorrelationIDFromContext(ctx); ok {
		r.mu.Lock()
		r.lastRequestID = id
		r.mu.Unlock()
	}
	return r.Orchestrator.RunBatch(ctx, tracker, owner)
}

func (r *recordingRunner) correlationID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRequestID
}
