package observability

import (
	"sync/atomic"
	"time"
)

// Feeds is the synchronous surface the research loop pushes events
// through. Each call fans out to the registry and the relevant tracker;
// nothing here blocks or reads monitoring state back, so the foreground
// loop pays only the cost of a few appends.
type Feeds struct {
	registry  *Registry
	diversity *DiversityTracker
	alerts    *AlertEngine

	iteration atomic.Int64
}

// NewFeeds wires the feed surface over the core components. The alerts
// engine may be nil when outcome ring feeding is not wanted.
func NewFeeds(registry *Registry, diversity *DiversityTracker, alerts *AlertEngine) *Feeds {
	return &Feeds{registry: registry, diversity: diversity, alerts: alerts}
}

// IterationStarted marks the beginning of iteration n.
func (f *Feeds) IterationStarted(n int) {
	f.iteration.Store(int64(n))
	f.registry.RecordIterationStart(n)
}

// IterationSucceeded records a successful iteration with its backtest
// score and wall-clock duration.
func (f *Feeds) IterationSucceeded(score float64, duration time.Duration) {
	f.registry.RecordIterationSuccess(score, duration)
	if f.alerts != nil {
		f.alerts.RecordOutcome(true)
	}
}

// IterationFailed records a failed iteration, labeled by failure kind
// (generation, backtest, sandbox, timeout, ...).
func (f *Feeds) IterationFailed(kind string) {
	f.registry.RecordIterationFailure(kind)
	if f.alerts != nil {
		f.alerts.RecordOutcome(false)
	}
}

// ChampionUpdated records an accepted champion replacement.
func (f *Feeds) ChampionUpdated(oldScore, newScore float64, iteration int) {
	f.diversity.RecordChampionUpdate(iteration, oldScore, newScore)
}

// DiversityObserved records one per-iteration diversity observation.
// Invalid inputs are rejected with an input-contract error.
func (f *Feeds) DiversityObserved(iteration int, diversity float64, unique, total int) error {
	return f.diversity.RecordDiversity(iteration, diversity, unique, total)
}

// ContainerCreated notes that the sandbox launched a container.
func (f *Feeds) ContainerCreated() {
	f.registry.RecordContainerCreated()
}

// CurrentIteration returns the most recently started iteration.
func (f *Feeds) CurrentIteration() int {
	return int(f.iteration.Load())
}
