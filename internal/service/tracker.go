package service

import (
	"fmt"
	"sync"

	"github.com/kursadbilgin/docdrop/internal/domain"
)

// Tracker owns the file items of one batch and serialises every state change.
//
// Items live in an arena: an index handed out by Add stays valid for the lifetime of the
// tracker, and Remove leaves a tombstone instead of shifting later items. Observers receive
// deep-copied snapshots in mutation order and must not call back into the tracker.
type Tracker struct {
	mu       sync.Mutex
	notifyMu sync.Mutex

	items        []*domain.FileItem
	version      uint64
	observers    map[int]func(domain.Batch)
	nextObserver int
}

func NewTracker() *Tracker {
	return &Tracker{observers: make(map[int]func(domain.Batch))}
}

// Add appends Idle items with zero progress and returns their indices. Duplicates are kept.
func (t *Tracker) Add(handles ...domain.FileHandle) []int {
	if len(handles) == 0 {
		return nil
	}

	t.mu.Lock()
	indices := make([]int, 0, len(handles))
	for _, h := range handles {
		index := len(t.items)
		t.items = append(t.items, &domain.FileItem{
			Index:    index,
			Handle:   h,
			State:    domain.ItemStateIdle,
			Progress: domain.ProgressNone,
		})
		indices = append(indices, index)
	}
	t.publishLocked()

	return indices
}

// Remove drops an Idle item. Items that are uploading or finished cannot be removed.
func (t *Tracker) Remove(index int) error {
	t.mu.Lock()
	item, err := t.itemLocked(index)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	if item.State != domain.ItemStateIdle {
		t.mu.Unlock()
		return fmt.Errorf("%w: item %d is %s", domain.ErrNotRemovable, index, item.State)
	}

	t.items[index] = nil
	t.publishLocked()
	return nil
}

// Claim moves an Idle item to Uploading at the started checkpoint.
// It returns false when the item is gone or not Idle, so an item is never submitted twice.
func (t *Tracker) Claim(index int) bool {
	t.mu.Lock()
	item, err := t.itemLocked(index)
	if err != nil || item.State != domain.ItemStateIdle {
		t.mu.Unlock()
		return false
	}

	item.State = domain.ItemStateUploading
	item.Progress = domain.ProgressStarted
	item.ErrorDetail = ""
	t.publishLocked()
	return true
}

// Transition atomically sets state, progress and error detail of a claimed item.
func (t *Tracker) Transition(index int, state domain.ItemState, progress int, errorDetail string) error {
	if !state.IsValid() {
		return fmt.Errorf("%w: invalid item state %q", domain.ErrValidation, state)
	}
	if progress < domain.ProgressNone || progress > domain.ProgressDone {
		return fmt.Errorf("%w: progress %d out of range", domain.ErrValidation, progress)
	}
	switch state {
	case domain.ItemStateIdle:
		return fmt.Errorf("%w: use Reset to return an item to %s", domain.ErrValidation, state)
	case domain.ItemStateError:
		if errorDetail == "" {
			return fmt.Errorf("%w: error detail is required", domain.ErrValidation)
		}
	case domain.ItemStateSuccess:
		if progress != domain.ProgressDone {
			return fmt.Errorf("%w: successful item must report progress %d", domain.ErrValidation, domain.ProgressDone)
		}
		errorDetail = ""
	default:
		errorDetail = ""
	}

	t.mu.Lock()
	item, err := t.itemLocked(index)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	if item.State != domain.ItemStateUploading {
		t.mu.Unlock()
		return fmt.Errorf("%w: item %d is %s, not %s", domain.ErrConflict, index, item.State, domain.ItemStateUploading)
	}
	if state == domain.ItemStateUploading {
		if progress < item.Progress {
			t.mu.Unlock()
			return fmt.Errorf("%w: progress of item %d cannot go from %d to %d", domain.ErrValidation, index, item.Progress, progress)
		}
		if progress == item.Progress {
			t.mu.Unlock()
			return nil
		}
	}

	item.State = state
	item.Progress = progress
	item.ErrorDetail = errorDetail
	t.publishLocked()
	return nil
}

// Annotate attaches the storage path and document id of an in-flight item.
func (t *Tracker) Annotate(index int, objectPath, documentID string) error {
	t.mu.Lock()
	item, err := t.itemLocked(index)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	if item.State != domain.ItemStateUploading {
		t.mu.Unlock()
		return fmt.Errorf("%w: item %d is %s, not %s", domain.ErrConflict, index, item.State, domain.ItemStateUploading)
	}

	item.Path = objectPath
	item.DocumentID = documentID
	t.publishLocked()
	return nil
}

// Reset returns a failed item to Idle so it can be submitted again.
func (t *Tracker) Reset(index int) error {
	t.mu.Lock()
	item, err := t.itemLocked(index)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	if item.State != domain.ItemStateError {
		t.mu.Unlock()
		return fmt.Errorf("%w: only %s items can be reset, item %d is %s", domain.ErrConflict, domain.ItemStateError, index, item.State)
	}

	item.State = domain.ItemStateIdle
	item.Progress = domain.ProgressNone
	item.ErrorDetail = ""
	item.Path = ""
	item.DocumentID = ""
	t.publishLocked()
	return nil
}

// Item returns a copy of the item at index.
func (t *Tracker) Item(index int) (domain.FileItem, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	item, err := t.itemLocked(index)
	if err != nil {
		return domain.FileItem{}, err
	}
	return *item, nil
}

// IdleIndices lists Idle items in insertion order.
func (t *Tracker) IdleIndices() []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var indices []int
	for _, item := range t.items {
		if item != nil && item.State == domain.ItemStateIdle {
			indices = append(indices, item.Index)
		}
	}
	return indices
}

func (t *Tracker) Snapshot() domain.Batch {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Subscribe registers fn for every subsequent mutation. The returned func unsubscribes.
func (t *Tracker) Subscribe(fn func(domain.Batch)) func() {
	if fn == nil {
		return func() {}
	}

	t.mu.Lock()
	id := t.nextObserver
	t.nextObserver++
	t.observers[id] = fn
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.observers, id)
			t.mu.Unlock()
		})
	}
}

func (t *Tracker) itemLocked(index int) (*domain.FileItem, error) {
	if index < 0 || index >= len(t.items) || t.items[index] == nil {
		return nil, fmt.Errorf("%w: item %d", domain.ErrNotFound, index)
	}
	return t.items[index], nil
}

func (t *Tracker) snapshotLocked() domain.Batch {
	items := make([]domain.FileItem, 0, len(t.items))
	for _, item := range t.items {
		if item != nil {
			items = append(items, *item)
		}
	}
	return domain.Batch{Items: items, Version: t.version}
}

// publishLocked bumps the version and hands the new snapshot to observers.
// It must be called with mu held and releases it. notifyMu is taken before mu is
// released so deliveries happen in the same order as mutations.
func (t *Tracker) publishLocked() {
	t.version++
	if len(t.observers) == 0 {
		t.mu.Unlock()
		return
	}

	snapshot := t.snapshotLocked()
	observers := make([]func(domain.Batch), 0, len(t.observers))
	for id := 0; id < t.nextObserver; id++ {
		if fn, ok := t.observers[id]; ok {
			observers = append(observers, fn)
		}
	}

	t.notifyMu.Lock()
	t.mu.Unlock()
	defer t.notifyMu.Unlock()

	for _, fn := range observers {
		fn(copyBatch(snapshot))
	}
}

func copyBatch(b domain.Batch) domain.Batch {
	items := make([]domain.FileItem, len(b.Items))
	copy(items, b.Items)
	return domain.Batch{Items: items, Version: b.Version}
}
