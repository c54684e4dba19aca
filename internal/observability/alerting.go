package observability

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AlertType identifies one of the monitored anomaly conditions.
type AlertType string

const (
	AlertHighMemory         AlertType = "high_memory"
	AlertDiversityCollapse  AlertType = "diversity_collapse"
	AlertChampionStaleness  AlertType = "champion_staleness"
	AlertLowSuccessRate     AlertType = "low_success_rate"
	AlertOrphanedContainers AlertType = "orphaned_containers"
)

// AlertSeverity is the urgency of an alert.
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is one triggered condition. Alerts are transient: the engine
// retains only the suppression timestamp, the active-set entry, and the
// most recent alert per type left behind by an evaluation.
type Alert struct {
	Type           AlertType     `json:"alert_type"`
	Severity       AlertSeverity `json:"severity"`
	Message        string        `json:"message"`
	CurrentValue   float64       `json:"current_value"`
	ThresholdValue float64       `json:"threshold_value"`
	TriggeredAt    time.Time     `json:"timestamp"`
	Iteration      int           `json:"iteration_context"`
}

// AlertThresholds configures the five rule evaluators.
type AlertThresholds struct {
	MemoryPercent      float64 `yaml:"memory_percent"`
	Diversity          float64 `yaml:"diversity"`
	Staleness          int     `yaml:"staleness"`
	SuccessRate        float64 `yaml:"success_rate"`
	SuccessRateWindow  int     `yaml:"success_rate_window"`
	OrphanedContainers int     `yaml:"orphaned_containers"`
}

// DefaultAlertThresholds returns the stock thresholds.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		MemoryPercent:      80,
		Diversity:          0.1,
		Staleness:          20,
		SuccessRate:        0.3,
		SuccessRateWindow:  20,
		OrphanedContainers: 5,
	}
}

// DefaultSuppression and DefaultEvaluateInterval drive the engine loop
// when no configuration is supplied.
const (
	DefaultSuppression      = 300 * time.Second
	DefaultEvaluateInterval = 10 * time.Second

	// slowCycle is the soft budget for one evaluation cycle. Exceeding it
	// logs a performance warning but is not enforced.
	slowCycle = 50 * time.Millisecond
)

// DataSources are the accessor callbacks the engine polls. Every field is
// optional; a nil accessor disables its rule. They are resolved once at
// construction, never probed per call.
type DataSources struct {
	// MemoryPercent returns current host memory utilisation.
	MemoryPercent func() (float64, error)
	// Diversity returns the latest point-in-time population diversity.
	// This is deliberately a coarser, faster signal than the tracker's
	// windowed collapse detection; the two are layered, not redundant.
	Diversity func() (float64, error)
	// Staleness returns iterations since the last champion update.
	Staleness func() (int, error)
	// SuccessRate returns the rolling iteration success rate. When nil the
	// engine falls back to its internal outcome ring.
	SuccessRate func() (float64, error)
	// OrphanedContainers returns the current orphaned container count.
	OrphanedContainers func() (int, error)
	// Iteration returns the loop's current iteration for alert context.
	Iteration func() int
}

// AlertEngine evaluates five independent threshold rules on a fixed
// interval, suppresses repeats of the same alert type inside the
// suppression window, and pushes alert counters into the registry.
type AlertEngine struct {
	sources     DataSources
	thresholds  AlertThresholds
	suppression time.Duration
	registry    *Registry
	logger      *zap.Logger

	// now is injected for deterministic suppression tests.
	now func() time.Time

	mu          sync.Mutex
	lastTrigger map[AlertType]time.Time
	active      map[AlertType]struct{}
	lastAlert   map[AlertType]Alert
	outcomes    []bool

	lifecycle sync.Mutex
	running   bool
	stop      chan struct{}
	done      chan struct{}
}

// NewAlertEngine creates an engine over the given data sources. A zero
// suppression duration selects the default.
func NewAlertEngine(registry *Registry, logger *zap.Logger, sources DataSources, thresholds AlertThresholds, suppression time.Duration) *AlertEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if suppression <= 0 {
		suppression = DefaultSuppression
	}
	if thresholds.SuccessRateWindow <= 0 {
		thresholds.SuccessRateWindow = DefaultAlertThresholds().SuccessRateWindow
	}
	return &AlertEngine{
		sources:     sources,
		thresholds:  thresholds,
		suppression: suppression,
		registry:    registry,
		logger:      logger,
		now:         time.Now,
		lastTrigger: make(map[AlertType]time.Time),
		active:      make(map[AlertType]struct{}),
		lastAlert:   make(map[AlertType]Alert),
	}
}

// RecordOutcome feeds the internal success-rate ring, used when no
// SuccessRate accessor was supplied. The ring is bounded by the configured
// success-rate window.
func (e *AlertEngine) RecordOutcome(success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outcomes = append(e.outcomes, success)
	if len(e.outcomes) > e.thresholds.SuccessRateWindow {
		e.outcomes = e.outcomes[1:]
	}
}

// successRate resolves the rolling success rate from the accessor or the
// internal ring. The second return is false when no data exists.
func (e *AlertEngine) successRate() (float64, bool, error) {
	if e.sources.SuccessRate != nil {
		v, err := e.sources.SuccessRate()
		return v, err == nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.outcomes) == 0 {
		return 0, false, nil
	}
	var ok int
	for _, s := range e.outcomes {
		if s {
			ok++
		}
	}
	return float64(ok) / float64(len(e.outcomes)), true, nil
}

// Evaluate runs every rule once, applies suppression, and returns the
// alerts that actually fired. Suppressed hits are debug-logged only. A
// data source that fails or panics disables its rule for this cycle
// without blocking the other four.
func (e *AlertEngine) Evaluate() []Alert {
	start := time.Now()
	now := e.now()
	iteration := e.currentIteration()

	candidates := e.collectCandidates(now, iteration)

	e.mu.Lock()
	// Lazily expire stale suppression entries instead of sweeping them.
	for alertType, last := range e.lastTrigger {
		if now.Sub(last) >= e.suppression {
			delete(e.lastTrigger, alertType)
		}
	}

	// The active set reflects which conditions held this cycle, regardless
	// of whether their alerts were suppressed.
	e.active = make(map[AlertType]struct{}, len(candidates))
	for _, a := range candidates {
		e.active[a.Type] = struct{}{}
		e.lastAlert[a.Type] = a
	}

	var fired []Alert
	for _, a := range candidates {
		if last, seen := e.lastTrigger[a.Type]; seen && now.Sub(last) < e.suppression {
			e.logger.Debug("alert suppressed",
				zap.String("alert_type", string(a.Type)),
				zap.Time("last_trigger", last))
			continue
		}
		e.lastTrigger[a.Type] = now
		fired = append(fired, a)
	}
	activeCount := len(e.active)
	e.mu.Unlock()

	for _, a := range fired {
		e.logAlert(a)
		e.registry.RecordAlertTriggered(a.Type)
	}
	e.registry.RecordActiveAlerts(activeCount)

	if elapsed := time.Since(start); elapsed > slowCycle {
		e.logger.Warn("slow alert evaluation cycle", zap.Duration("elapsed", elapsed))
	}
	return fired
}

// currentIteration resolves the loop iteration stamped onto alerts. A
// missing or panicking accessor yields zero; context enrichment must never
// take down an evaluation cycle.
func (e *AlertEngine) currentIteration() (n int) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("iteration accessor panicked, using zero", zap.Any("panic", r))
			n = 0
		}
	}()
	if e.sources.Iteration == nil {
		return 0
	}
	return e.sources.Iteration()
}

// collectCandidates evaluates the five rules and returns the conditions
// that currently hold.
func (e *AlertEngine) collectCandidates(now time.Time, iteration int) []Alert {
	var candidates []Alert
	add := func(a *Alert) {
		if a != nil {
			a.TriggeredAt = now
			a.Iteration = iteration
			candidates = append(candidates, *a)
		}
	}
	add(e.evalRule(AlertHighMemory, e.checkHighMemory))
	add(e.evalRule(AlertDiversityCollapse, e.checkDiversity))
	add(e.evalRule(AlertChampionStaleness, e.checkStaleness))
	add(e.evalRule(AlertLowSuccessRate, e.checkSuccessRate))
	add(e.evalRule(AlertOrphanedContainers, e.checkOrphaned))
	return candidates
}

// evalRule isolates one rule: an accessor error or panic is logged and the
// rule contributes nothing this cycle.
func (e *AlertEngine) evalRule(alertType AlertType, check func() (*Alert, error)) (alert *Alert) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("alert rule panicked, skipping",
				zap.String("alert_type", string(alertType)),
				zap.Any("panic", r))
			alert = nil
		}
	}()
	alert, err := check()
	if err != nil {
		e.logger.Warn("alert data source failed, skipping rule",
			zap.String("alert_type", string(alertType)),
			zap.Error(err))
		return nil
	}
	return alert
}

func (e *AlertEngine) checkHighMemory() (*Alert, error) {
	if e.sources.MemoryPercent == nil {
		return nil, nil
	}
	v, err := e.sources.MemoryPercent()
	if err != nil {
		return nil, err
	}
	if v <= e.thresholds.MemoryPercent {
		return nil, nil
	}
	return &Alert{
		Type:           AlertHighMemory,
		Severity:       SeverityCritical,
		Message:        fmt.Sprintf("host memory at %.1f%% exceeds %.1f%%", v, e.thresholds.MemoryPercent),
		CurrentValue:   v,
		ThresholdValue: e.thresholds.MemoryPercent,
	}, nil
}

func (e *AlertEngine) checkDiversity() (*Alert, error) {
	if e.sources.Diversity == nil {
		return nil, nil
	}
	v, err := e.sources.Diversity()
	if err != nil {
		return nil, err
	}
	if v >= e.thresholds.Diversity {
		return nil, nil
	}
	return &Alert{
		Type:           AlertDiversityCollapse,
		Severity:       SeverityWarning,
		Message:        fmt.Sprintf("population diversity %.3f below %.3f", v, e.thresholds.Diversity),
		CurrentValue:   v,
		ThresholdValue: e.thresholds.Diversity,
	}, nil
}

func (e *AlertEngine) checkStaleness() (*Alert, error) {
	if e.sources.Staleness == nil {
		return nil, nil
	}
	v, err := e.sources.Staleness()
	if err != nil {
		return nil, err
	}
	if v < e.thresholds.Staleness {
		return nil, nil
	}
	return &Alert{
		Type:           AlertChampionStaleness,
		Severity:       SeverityWarning,
		Message:        fmt.Sprintf("champion unchanged for %d iterations (threshold %d)", v, e.thresholds.Staleness),
		CurrentValue:   float64(v),
		ThresholdValue: float64(e.thresholds.Staleness),
	}, nil
}

func (e *AlertEngine) checkSuccessRate() (*Alert, error) {
	v, haveData, err := e.successRate()
	if err != nil {
		return nil, err
	}
	if !haveData || v >= e.thresholds.SuccessRate {
		return nil, nil
	}
	return &Alert{
		Type:           AlertLowSuccessRate,
		Severity:       SeverityWarning,
		Message:        fmt.Sprintf("iteration success rate %.2f below %.2f", v, e.thresholds.SuccessRate),
		CurrentValue:   v,
		ThresholdValue: e.thresholds.SuccessRate,
	}, nil
}

func (e *AlertEngine) checkOrphaned() (*Alert, error) {
	if e.sources.OrphanedContainers == nil {
		return nil, nil
	}
	v, err := e.sources.OrphanedContainers()
	if err != nil {
		return nil, err
	}
	if v <= e.thresholds.OrphanedContainers {
		return nil, nil
	}
	return &Alert{
		Type:           AlertOrphanedContainers,
		Severity:       SeverityCritical,
		Message:        fmt.Sprintf("%d orphaned sandbox containers exceed threshold %d", v, e.thresholds.OrphanedContainers),
		CurrentValue:   float64(v),
		ThresholdValue: float64(e.thresholds.OrphanedContainers),
	}, nil
}

func (e *AlertEngine) logAlert(a Alert) {
	fields := []zap.Field{
		zap.String("alert_type", string(a.Type)),
		zap.Float64("current", a.CurrentValue),
		zap.Float64("threshold", a.ThresholdValue),
		zap.Int("iteration", a.Iteration),
	}
	if a.Severity == SeverityCritical {
		e.logger.Error(a.Message, fields...)
		return
	}
	e.logger.Warn(a.Message, fields...)
}

// ActiveAlerts returns the alert types whose condition held during the
// most recent evaluation, sorted for determinism.
func (e *AlertEngine) ActiveAlerts() []AlertType {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]AlertType, 0, len(e.active))
	for t := range e.active {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ActiveAlertStates returns the most recent alert for each currently
// active type, sorted by type. Unlike Evaluate it is a pure read: no
// suppression timestamps move and no counters increment, so display
// surfaces can poll it freely.
func (e *AlertEngine) ActiveAlertStates() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Alert, 0, len(e.active))
	for t := range e.active {
		out = append(out, e.lastAlert[t])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Start launches the evaluation loop. A non-positive interval selects the
// default. Double-start returns ErrAlreadyRunning.
func (e *AlertEngine) Start(interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultEvaluateInterval
	}
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	if e.running {
		e.logger.Error("alert engine start called while running")
		return ErrAlreadyRunning
	}
	e.running = true
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go e.run(interval, e.stop, e.done)
	e.logger.Info("alert engine started", zap.Duration("interval", interval))
	return nil
}

func (e *AlertEngine) run(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.Evaluate()
		}
	}
}

// Stop signals the loop and waits up to the shutdown timeout. Stopping an
// idle engine logs and returns; after a clean return no further alerts or
// counter increments occur.
func (e *AlertEngine) Stop() {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	if !e.running {
		e.logger.Debug("alert engine stop called while not running")
		return
	}
	close(e.stop)
	select {
	case <-e.done:
		e.logger.Info("alert engine stopped")
	case <-time.After(stopTimeout):
		e.logger.Error("alert engine did not stop within timeout")
	}
	e.running = false
}
