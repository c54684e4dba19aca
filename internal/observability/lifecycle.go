package observability

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alphaloop/alphaloop/internal/sandbox"
)

// orphanStatuses are the container states that qualify as orphaned.
var orphanStatuses = map[string]bool{
	"exited": true,
	"dead":   true,
}

// LifecycleTracker watches sandbox-owned containers: it finds orphans left
// behind by crashed iterations, removes them after re-verifying ownership,
// and pushes per-container resource gauges.
//
// The tracker must never destabilise the foreground loop, so an
// unreachable runtime degrades every operation to an empty result with a
// warning log instead of an error.
type LifecycleTracker struct {
	runtime  sandbox.Runtime
	registry *Registry
	logger   *zap.Logger

	mu       sync.Mutex
	failures map[string]struct{}

	lifecycle sync.Mutex
	running   bool
	stop      chan struct{}
	done      chan struct{}
}

// NewLifecycleTracker creates a tracker over the given runtime.
func NewLifecycleTracker(runtime sandbox.Runtime, registry *Registry, logger *zap.Logger) *LifecycleTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleTracker{
		runtime:  runtime,
		registry: registry,
		logger:   logger,
		failures: make(map[string]struct{}),
	}
}

// ScanOrphaned enumerates all containers, including stopped ones, and
// returns the IDs of sandbox-owned containers in an exited or dead state.
// It never mutates runtime state. Runtime unavailability yields nil.
func (t *LifecycleTracker) ScanOrphaned(ctx context.Context) []string {
	containers, err := t.runtime.ListContainers(ctx, true)
	if err != nil {
		t.logger.Warn("orphan scan skipped, runtime unavailable", zap.Error(err))
		return nil
	}

	var ids []string
	for _, c := range containers {
		if c.Owned() && orphanStatuses[c.Status] {
			ids = append(ids, c.ID)
		}
	}
	t.registry.RecordOrphanedCount(len(ids))
	return ids
}

// Cleanup removes the given containers after re-verifying each one still
// carries the sandbox ownership label, guarding against an ID being reused
// by an unrelated container between scan and removal. A nil ids slice
// triggers a fresh scan first.
//
// Failures are isolated per container: one failed removal never aborts the
// batch. Failed IDs are retained in the cleanup-failures set for operator
// visibility. The IDs actually removed are returned.
func (t *LifecycleTracker) Cleanup(ctx context.Context, ids []string) []string {
	if ids == nil {
		ids = t.ScanOrphaned(ctx)
	}

	var cleaned []string
	for _, id := range ids {
		snap, err := t.runtime.InspectContainer(ctx, id)
		if err != nil {
			t.logger.Warn("skipping cleanup, inspect failed",
				zap.String("container", id), zap.Error(err))
			continue
		}
		if !snap.Owned() {
			t.logger.Warn("skipping cleanup, ownership re-verification failed",
				zap.String("container", id),
				zap.String("name", snap.Name))
			continue
		}

		if err := t.runtime.RemoveContainer(ctx, id, true); err != nil {
			t.logger.Warn("container removal failed",
				zap.String("container", id), zap.Error(err))
			t.recordFailure(id)
			continue
		}

		t.logger.Info("orphaned container removed",
			zap.String("container", id),
			zap.String("name", snap.Name))
		t.registry.RecordContainerCleaned()
		cleaned = append(cleaned, id)
	}
	return cleaned
}

func (t *LifecycleTracker) recordFailure(id string) {
	t.mu.Lock()
	t.failures[id] = struct{}{}
	t.mu.Unlock()
	t.registry.RecordCleanupFailure()
}

// CleanupFailures returns the IDs whose removal has failed, sorted.
func (t *LifecycleTracker) CleanupFailures() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.failures))
	for id := range t.failures {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// OrphanedCount reports how many orphaned containers are present right now.
func (t *LifecycleTracker) OrphanedCount(ctx context.Context) int {
	return len(t.ScanOrphaned(ctx))
}

// PushStats queries per-container resource usage and records it. Runtime
// unavailability is logged and skipped.
func (t *LifecycleTracker) PushStats(ctx context.Context) {
	stats, err := t.runtime.ContainerStats(ctx)
	if err != nil {
		t.logger.Warn("container stats skipped, runtime unavailable", zap.Error(err))
		return
	}
	for _, c := range stats {
		t.registry.RecordContainerStats(c.Name, c.MemoryUsed, c.CPUPercent)
	}
}

// Start launches a periodic rescan loop that refreshes container stats and
// the orphan gauge. Double-start returns ErrAlreadyRunning.
func (t *LifecycleTracker) Start(interval time.Duration) error {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()
	if t.running {
		t.logger.Error("lifecycle tracker start called while running")
		return ErrAlreadyRunning
	}
	t.running = true
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go t.run(interval, t.stop, t.done)
	t.logger.Info("lifecycle tracker started", zap.Duration("interval", interval))
	return nil
}

func (t *LifecycleTracker) run(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			t.PushStats(ctx)
			t.ScanOrphaned(ctx)
			cancel()
		}
	}
}

// Stop signals the rescan loop and waits up to the shutdown timeout for it
// to exit. Stopping an idle tracker logs and returns.
func (t *LifecycleTracker) Stop() {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()
	if !t.running {
		t.logger.Debug("lifecycle tracker stop called while not running")
		return
	}
	close(t.stop)
	select {
	case <-t.done:
		t.logger.Info("lifecycle tracker stopped")
	case <-time.After(stopTimeout):
		t.logger.Error("lifecycle tracker did not stop within timeout")
	}
	t.running = false
}
