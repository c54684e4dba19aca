package observability

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Input-contract errors raised by the diversity tracker. These indicate a
// caller bug; nothing is clamped or recorded when they fire.
var (
	ErrDiversityRange   = errors.New("observability: diversity must be within [0, 1]")
	ErrInvalidCounts    = errors.New("observability: unique count must be within [0, total count]")
	ErrNoChampionUpdate = errors.New("observability: no champion update recorded yet")
)

// DefaultCollapseWindow and DefaultCollapseThreshold drive collapse
// detection when no explicit configuration is supplied.
const (
	DefaultCollapseWindow    = 5
	DefaultCollapseThreshold = 0.1
)

// DiversitySnapshot is one per-iteration diversity observation.
type DiversitySnapshot struct {
	Iteration   int
	Diversity   float64
	UniqueCount int
	TotalCount  int
	RecordedAt  time.Time
}

// ChampionUpdateEvent records an accepted champion replacement.
type ChampionUpdateEvent struct {
	Iteration int
	OldScore  float64
	NewScore  float64
}

// DiversityTracker keeps a bounded window of diversity observations and the
// champion staleness counter, and detects sustained diversity collapse.
//
// The foreground loop is the sole writer, so insertion order in the window
// strictly matches iteration order. The mutex exists for the alert engine,
// which reads concurrently from its background loop.
type DiversityTracker struct {
	registry  *Registry
	logger    *zap.Logger
	window    int
	threshold float64

	mu           sync.Mutex
	ring         []DiversitySnapshot
	lastUpdate   int
	hasUpdate    bool
	lastChampion ChampionUpdateEvent
	collapsed    bool
}

// NewDiversityTracker creates a tracker with the given collapse window and
// threshold. Non-positive window and out-of-range threshold fall back to
// the defaults.
func NewDiversityTracker(registry *Registry, logger *zap.Logger, window int, threshold float64) *DiversityTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if window <= 0 {
		window = DefaultCollapseWindow
	}
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultCollapseThreshold
	}
	return &DiversityTracker{
		registry:  registry,
		logger:    logger,
		window:    window,
		threshold: threshold,
	}
}

// RecordDiversity validates and stores one observation, evicting the oldest
// when the window is full, and pushes the diversity gauge. Validation
// failures reject the whole call.
func (d *DiversityTracker) RecordDiversity(iteration int, diversity float64, unique, total int) error {
	if diversity < 0 || diversity > 1 {
		return fmt.Errorf("%w: got %g", ErrDiversityRange, diversity)
	}
	if unique < 0 || total < 0 || unique > total {
		return fmt.Errorf("%w: unique=%d total=%d", ErrInvalidCounts, unique, total)
	}

	snap := DiversitySnapshot{
		Iteration:   iteration,
		Diversity:   diversity,
		UniqueCount: unique,
		TotalCount:  total,
		RecordedAt:  time.Now(),
	}

	d.mu.Lock()
	d.ring = append(d.ring, snap)
	if len(d.ring) > d.window {
		d.ring = d.ring[1:]
	}
	d.mu.Unlock()

	d.registry.RecordDiversity(diversity)
	return nil
}

// RecordChampionUpdate resets staleness to zero and stores the iteration of
// the update. It is the sole writer of the staleness baseline.
func (d *DiversityTracker) RecordChampionUpdate(iteration int, oldScore, newScore float64) {
	d.mu.Lock()
	d.lastUpdate = iteration
	d.hasUpdate = true
	d.lastChampion = ChampionUpdateEvent{Iteration: iteration, OldScore: oldScore, NewScore: newScore}
	d.mu.Unlock()

	d.registry.RecordChampionUpdate(newScore)
	d.logger.Info("champion updated",
		zap.Int("iteration", iteration),
		zap.Float64("old_score", oldScore),
		zap.Float64("new_score", newScore))
}

// Staleness reports iterations elapsed since the last champion update.
// Calling it before any update has been recorded is an error; the baseline
// is undefined.
func (d *DiversityTracker) Staleness(currentIteration int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.hasUpdate {
		return 0, ErrNoChampionUpdate
	}
	staleness := currentIteration - d.lastUpdate
	if staleness < 0 {
		staleness = 0
	}
	return staleness, nil
}

// LastChampion returns the most recent champion update event, if any.
func (d *DiversityTracker) LastChampion() (ChampionUpdateEvent, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastChampion, d.hasUpdate
}

// Current returns the most recent diversity observation, or false when
// nothing has been recorded.
func (d *DiversityTracker) Current() (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.ring) == 0 {
		return 0, false
	}
	return d.ring[len(d.ring)-1].Diversity, true
}

// Window returns a copy of the retained observations, oldest first.
func (d *DiversityTracker) Window() []DiversitySnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DiversitySnapshot, len(d.ring))
	copy(out, d.ring)
	return out
}

// CheckCollapse reports whether the population has collapsed: the last
// window consecutive observations are all strictly below the threshold.
// Equality does not count, and fewer than window observations can never
// collapse. The collapsed state is sticky between checks; the transition
// in either direction is logged exactly once. Without new data, repeated
// calls return the same result.
func (d *DiversityTracker) CheckCollapse() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	condition := len(d.ring) == d.window
	if condition {
		for _, snap := range d.ring {
			if snap.Diversity >= d.threshold {
				condition = false
				break
			}
		}
	}

	switch {
	case condition && !d.collapsed:
		d.collapsed = true
		d.logger.Warn("population diversity collapse detected",
			zap.Float64("threshold", d.threshold),
			zap.Int("window", d.window))
	case !condition && d.collapsed:
		d.collapsed = false
		d.logger.Info("population diversity recovered",
			zap.Float64("threshold", d.threshold))
	}
	return d.collapsed
}
