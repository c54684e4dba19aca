package observability

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Metric names owned by the registry. Collaborators record through the
// typed helpers below rather than spelling these out.
const (
	MetricIterationsTotal   = "loop_iterations_total"
	MetricIterationSuccess  = "loop_iteration_successes_total"
	MetricIterationFailures = "loop_iteration_failures_total"
	MetricIterationDuration = "loop_iteration_duration_seconds"
	MetricIterationOutcome  = "loop_iteration_outcome"
	MetricCurrentIteration  = "loop_current_iteration"
	MetricStrategyScore     = "loop_strategy_score"

	MetricChampionUpdates = "champion_updates_total"
	MetricChampionScore   = "champion_score"

	MetricDiversity = "population_diversity"

	MetricCPUPercent    = "resource_cpu_percent"
	MetricMemoryPercent = "resource_memory_percent"
	MetricMemoryUsed    = "resource_memory_used_bytes"
	MetricDiskPercent   = "resource_disk_percent"

	MetricContainersCreated = "sandbox_containers_created_total"
	MetricContainersCleaned = "sandbox_containers_cleaned_total"
	MetricCleanupFailures   = "sandbox_cleanup_failures_total"
	MetricOrphanedCount     = "sandbox_orphaned_containers"
	MetricContainerMemory   = "sandbox_container_memory_bytes"
	MetricContainerCPU      = "sandbox_container_cpu_percent"

	MetricAlertsTriggered = "alerts_triggered_total"
	MetricAlertsActive    = "alerts_active"
)

// Registry owns every named metric in the process. It is the single sink
// all trackers and monitors push into; nothing reads registry state back
// into tracker decisions, which keeps the data flow one-directional.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]*Metric
	order   []string
	started time.Time
	logger  *zap.Logger
}

// NewRegistry creates a registry pre-populated with the loop, champion,
// resource, sandbox, and alert metric families.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		metrics: make(map[string]*Metric),
		started: time.Now(),
		logger:  logger,
	}

	r.Register(MetricIterationsTotal, KindCounter, "Research loop iterations started", "iterations")
	r.Register(MetricIterationSuccess, KindCounter, "Iterations that produced a valid backtested strategy", "iterations")
	r.Register(MetricIterationFailures, KindCounter, "Iterations that failed, by failure kind", "iterations")
	r.Register(MetricIterationDuration, KindHistogram, "Wall-clock duration of one full iteration", "seconds")
	r.Register(MetricIterationOutcome, KindGauge, "Per-iteration outcome, 1 for success and 0 for failure", "")
	r.Register(MetricCurrentIteration, KindGauge, "Iteration the loop is currently executing", "iterations")
	r.Register(MetricStrategyScore, KindSummary, "Backtest score of each generated strategy", "score")

	r.Register(MetricChampionUpdates, KindCounter, "Accepted champion replacements", "updates")
	r.Register(MetricChampionScore, KindGauge, "Score of the current champion strategy", "score")

	r.Register(MetricDiversity, KindGauge, "Population diversity ratio in [0,1]", "ratio")

	r.Register(MetricCPUPercent, KindGauge, "Host CPU utilisation", "percent")
	r.Register(MetricMemoryPercent, KindGauge, "Host memory utilisation", "percent")
	r.Register(MetricMemoryUsed, KindGauge, "Host memory in use", "bytes")
	r.Register(MetricDiskPercent, KindGauge, "Host disk utilisation", "percent")

	r.Register(MetricContainersCreated, KindCounter, "Sandbox containers created", "containers")
	r.Register(MetricContainersCleaned, KindCounter, "Orphaned sandbox containers removed", "containers")
	r.Register(MetricCleanupFailures, KindCounter, "Sandbox cleanup attempts that failed", "containers")
	r.Register(MetricOrphanedCount, KindGauge, "Orphaned sandbox containers currently present", "containers")
	r.Register(MetricContainerMemory, KindGauge, "Per-container memory usage", "bytes")
	r.Register(MetricContainerCPU, KindGauge, "Per-container CPU utilisation", "percent")

	r.Register(MetricAlertsTriggered, KindCounter, "Alerts emitted, by alert type", "alerts")
	r.Register(MetricAlertsActive, KindGauge, "Alert types currently in active state", "alerts")

	return r
}

// Register creates a metric if the name is unknown. The first registration
// wins; repeated calls with the same name are no-ops, so collaborators can
// register defensively without coordinating.
func (r *Registry) Register(name string, kind MetricKind, help, unit string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.metrics[name]; exists {
		return
	}
	r.metrics[name] = newMetric(name, kind, help, unit)
	r.order = append(r.order, name)
}

// Record appends a sample to a registered metric. For counters the value
// is an increment; the stored sample carries the cumulative total for its
// label set. Recording against an unregistered name is a programming error,
// not a runtime condition, and panics so the bug surfaces immediately
// rather than dropping data silently.
func (r *Registry) Record(name string, value float64, labels map[string]string) {
	m := r.get(name)
	if m == nil {
		panic(fmt.Sprintf("observability: record on unregistered metric %q", name))
	}
	m.append(value, labels, time.Now())
}

// recordAt is Record with an explicit timestamp, used by tests and by
// monitors that captured the sample earlier than they push it.
func (r *Registry) recordAt(name string, value float64, labels map[string]string, ts time.Time) {
	m := r.get(name)
	if m == nil {
		panic(fmt.Sprintf("observability: record on unregistered metric %q", name))
	}
	m.append(value, labels, ts)
}

func (r *Registry) get(name string) *Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics[name]
}

// Latest returns the most recent value of a metric. Unknown names and empty
// series return false rather than failing; read paths never error.
func (r *Registry) Latest(name string) (float64, bool) {
	m := r.get(name)
	if m == nil {
		return 0, false
	}
	s, ok := m.Latest()
	if !ok {
		return 0, false
	}
	return s.Value, true
}

// Average returns the mean over the last window samples of a metric, or of
// the full series when window is zero or less.
func (r *Registry) Average(name string, window int) (float64, bool) {
	m := r.get(name)
	if m == nil {
		return 0, false
	}
	return m.Average(window)
}

// Percentile returns the p-th percentile over the last window samples.
func (r *Registry) Percentile(name string, p float64, window int) (float64, bool) {
	m := r.get(name)
	if m == nil {
		return 0, false
	}
	return m.Percentile(p, window)
}

// History returns a copy of the last limit samples of a metric, or nil for
// unknown names.
func (r *Registry) History(name string, limit int) []Sample {
	m := r.get(name)
	if m == nil {
		return nil
	}
	return m.History(limit)
}

// SuccessRate derives the rolling iteration success rate from the recorded
// outcome series. It is a pure function over stored samples; no separate
// counter state is kept.
func (r *Registry) SuccessRate(window int) (float64, bool) {
	return r.Average(MetricIterationOutcome, window)
}

// Uptime reports how long this registry has been alive.
func (r *Registry) Uptime() time.Duration {
	return time.Since(r.started)
}

// Reset drops every recorded sample and counter total while keeping
// registrations. This is the only path that ever removes samples.
func (r *Registry) Reset() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.metrics {
		m.reset()
	}
}

// snapshot returns the registered metrics in registration order.
func (r *Registry) snapshot() []*Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Metric, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.metrics[name])
	}
	return out
}

// --- Typed recorders used by the loop and the monitors -----------------

// RecordIterationStart notes that iteration n has begun.
func (r *Registry) RecordIterationStart(n int) {
	r.Record(MetricIterationsTotal, 1, nil)
	r.Record(MetricCurrentIteration, float64(n), nil)
}

// RecordIterationSuccess notes a successful iteration with its backtest
// score and duration.
func (r *Registry) RecordIterationSuccess(score float64, duration time.Duration) {
	r.Record(MetricIterationSuccess, 1, nil)
	r.Record(MetricIterationOutcome, 1, nil)
	r.Record(MetricIterationDuration, duration.Seconds(), nil)
	r.Record(MetricStrategyScore, score, nil)
}

// RecordIterationFailure notes a failed iteration, labeled by failure kind.
func (r *Registry) RecordIterationFailure(kind string) {
	r.Record(MetricIterationFailures, 1, map[string]string{"kind": kind})
	r.Record(MetricIterationOutcome, 0, nil)
}

// RecordChampionUpdate notes an accepted champion replacement.
func (r *Registry) RecordChampionUpdate(newScore float64) {
	r.Record(MetricChampionUpdates, 1, nil)
	r.Record(MetricChampionScore, newScore, nil)
}

// RecordDiversity pushes the current population diversity gauge.
func (r *Registry) RecordDiversity(diversity float64) {
	r.Record(MetricDiversity, diversity, nil)
}

// RecordResourceSnapshot pushes one host resource sample into the gauges.
func (r *Registry) RecordResourceSnapshot(s ResourceSnapshot) {
	r.recordAt(MetricCPUPercent, s.CPUPercent, nil, s.CollectedAt)
	r.recordAt(MetricMemoryPercent, s.MemoryPercent, nil, s.CollectedAt)
	r.recordAt(MetricMemoryUsed, float64(s.MemoryUsed), nil, s.CollectedAt)
	r.recordAt(MetricDiskPercent, s.DiskPercent, nil, s.CollectedAt)
}

// RecordContainerCreated notes a sandbox container creation.
func (r *Registry) RecordContainerCreated() {
	r.Record(MetricContainersCreated, 1, nil)
}

// RecordContainerCleaned notes a verified orphan removal.
func (r *Registry) RecordContainerCleaned() {
	r.Record(MetricContainersCleaned, 1, nil)
}

// RecordCleanupFailure notes a removal attempt that failed.
func (r *Registry) RecordCleanupFailure() {
	r.Record(MetricCleanupFailures, 1, nil)
}

// RecordOrphanedCount updates the orphaned container gauge.
func (r *Registry) RecordOrphanedCount(n int) {
	r.Record(MetricOrphanedCount, float64(n), nil)
}

// RecordContainerStats pushes per-container resource gauges.
func (r *Registry) RecordContainerStats(name string, memoryUsed uint64, cpuPercent float64) {
	labels := map[string]string{"container": name}
	r.Record(MetricContainerMemory, float64(memoryUsed), labels)
	r.Record(MetricContainerCPU, cpuPercent, labels)
}

// RecordAlertTriggered increments the alert counter for one alert type.
func (r *Registry) RecordAlertTriggered(alertType AlertType) {
	r.Record(MetricAlertsTriggered, 1, map[string]string{"alert_type": string(alertType)})
}

// RecordActiveAlerts updates the active alert type gauge.
func (r *Registry) RecordActiveAlerts(n int) {
	r.Record(MetricAlertsActive, float64(n), nil)
}
