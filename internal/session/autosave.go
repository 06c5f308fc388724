package session

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/aidanjnn/sketchy/internal/metrics"
	"github.com/aidanjnn/sketchy/internal/platform/logger"
)

const (
	DefaultDebounce = 2 * time.Second

	// saveTimeout bounds a single debounced write.
	saveTimeout = 10 * time.Second
)

type SnapshotSaver interface {
	SaveSnapshot(ctx context.Context, projectID string, snapshot json.RawMessage) error
}

// AutoSaver debounces canvas mutations into snapshot writes. Nothing is
// written before MarkLoaded, and a snapshot whose fingerprint matches the
// last persisted one is skipped.
type AutoSaver struct {
	projectID string
	store     SnapshotSaver
	delay     time.Duration
	log       *logger.Logger

	mu        sync.Mutex
	timer     *time.Timer
	pending   json.RawMessage
	loaded    bool
	suspended bool
	closed    bool
	saved     uint64
	hasSaved  bool

	writeMu sync.Mutex
	writes  sync.WaitGroup
}

func NewAutoSaver(projectID string, store SnapshotSaver, delay time.Duration, log *logger.Logger) *AutoSaver {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	if log == nil {
		log = logger.Nop()
	}
	return &AutoSaver{
		projectID: projectID,
		store:     store,
		delay:     delay,
		log:       log.With("component", "autosave", "project_id", projectID),
	}
}

// Fingerprint hashes the canonical JSON encoding of snapshot, so documents
// that differ only in key order or whitespace hash the same. Numbers keep
// their literal text.
func Fingerprint(snapshot json.RawMessage) uint64 {
	dec := json.NewDecoder(bytes.NewReader(snapshot))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return xxhash.Sum64(bytes.TrimSpace(snapshot))
	}
	canonical, err := json.Marshal(v)
	if err != nil {
		return xxhash.Sum64(snapshot)
	}
	return xxhash.Sum64(canonical)
}

// MarkLoaded enables persistence and seeds the fingerprint with the
// snapshot that was just loaded.
func (a *AutoSaver) MarkLoaded(snapshot json.RawMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loaded = true
	a.suspended = false
	a.pending = nil
	a.stopTimer()
	a.saved, a.hasSaved = Fingerprint(snapshot), true
}

// Notify records the latest snapshot and restarts the debounce timer.
func (a *AutoSaver) Notify(snapshot json.RawMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.pending = snapshot
	if !a.loaded || a.suspended {
		return
	}
	a.stopTimer()
	a.timer = time.AfterFunc(a.delay, a.fire)
}

func (a *AutoSaver) fire() {
	snapshot, ok := a.take()
	if !ok {
		return
	}
	defer a.writes.Done()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	// Failures are logged inside write; the next mutation retries.
	_ = a.write(ctx, snapshot)
}

// take claims the pending snapshot for a write and registers the write so
// Suspend can wait for it.
func (a *AutoSaver) take() (json.RawMessage, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending == nil || !a.loaded || a.suspended || a.closed {
		return nil, false
	}
	snapshot := a.pending
	a.pending = nil
	a.writes.Add(1)
	return snapshot, true
}

// Persist writes snapshot unless it matches the last persisted fingerprint,
// the initial load has not completed, or the saver is suspended.
func (a *AutoSaver) Persist(ctx context.Context, snapshot json.RawMessage) error {
	a.mu.Lock()
	if !a.loaded || a.suspended || a.closed {
		a.mu.Unlock()
		metrics.AutosaveTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	a.writes.Add(1)
	a.mu.Unlock()
	defer a.writes.Done()

	return a.write(ctx, snapshot)
}

func (a *AutoSaver) write(ctx context.Context, snapshot json.RawMessage) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	fp := Fingerprint(snapshot)
	a.mu.Lock()
	unchanged := a.hasSaved && a.saved == fp
	a.mu.Unlock()
	if unchanged {
		metrics.AutosaveTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	if err := a.store.SaveSnapshot(ctx, a.projectID, snapshot); err != nil {
		metrics.AutosaveTotal.WithLabelValues("failed").Inc()
		a.log.ForContext(ctx).Warn("autosave failed", "error", err)
		return err
	}

	a.mu.Lock()
	a.saved, a.hasSaved = fp, true
	a.mu.Unlock()
	metrics.AutosaveTotal.WithLabelValues("written").Inc()
	return nil
}

// Flush persists the pending snapshot now, if there is one.
func (a *AutoSaver) Flush(ctx context.Context) error {
	a.mu.Lock()
	a.stopTimer()
	a.mu.Unlock()

	snapshot, ok := a.take()
	if !ok {
		return nil
	}
	defer a.writes.Done()
	return a.write(ctx, snapshot)
}

// Suspend cancels the pending timer and waits for any in-flight write.
// Notifications are buffered but not scheduled until Resume or Rebase.
func (a *AutoSaver) Suspend() {
	a.mu.Lock()
	a.suspended = true
	a.stopTimer()
	a.mu.Unlock()
	a.writes.Wait()
}

// Resume re-arms persistence with snapshot as the pending state.
func (a *AutoSaver) Resume(snapshot json.RawMessage) {
	a.mu.Lock()
	a.suspended = false
	a.mu.Unlock()
	a.Notify(snapshot)
}

// Rebase treats snapshot as already persisted and resumes.
func (a *AutoSaver) Rebase(snapshot json.RawMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopTimer()
	a.pending = nil
	a.suspended = false
	a.saved, a.hasSaved = Fingerprint(snapshot), true
}

// Close flushes the pending snapshot and stops scheduling.
func (a *AutoSaver) Close(ctx context.Context) error {
	err := a.Flush(ctx)
	a.mu.Lock()
	a.closed = true
	a.stopTimer()
	a.mu.Unlock()
	a.writes.Wait()
	return err
}

func (a *AutoSaver) stopTimer() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}
