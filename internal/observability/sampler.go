package observability

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"
)

// ErrAlreadyRunning is returned when Start is called on a monitor whose
// background loop is already active.
var ErrAlreadyRunning = errors.New("observability: monitor already running")

// stopTimeout bounds how long Stop waits for a background loop to exit
// before reporting an unclean shutdown.
const stopTimeout = 10 * time.Second

// ResourceSnapshot is one successful host resource reading.
type ResourceSnapshot struct {
	CPUPercent    float64
	MemoryPercent float64
	MemoryUsed    uint64
	MemoryTotal   uint64
	DiskPercent   float64
	DiskUsed      uint64
	DiskTotal     uint64
	CollectedAt   time.Time
}

// Collector reads host resources. Injected so tests run without touching
// the OS; the default uses gopsutil.
type Collector func(ctx context.Context) (*ResourceSnapshot, error)

// gopsutilCollector reads CPU, memory, and root filesystem usage.
func gopsutilCollector(ctx context.Context) (*ResourceSnapshot, error) {
	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, err
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	du, err := disk.UsageWithContext(ctx, "/")
	if err != nil {
		return nil, err
	}
	snap := &ResourceSnapshot{
		MemoryPercent: vm.UsedPercent,
		MemoryUsed:    vm.Used,
		MemoryTotal:   vm.Total,
		DiskPercent:   du.UsedPercent,
		DiskUsed:      du.Used,
		DiskTotal:     du.Total,
		CollectedAt:   time.Now(),
	}
	if len(cpuPercents) > 0 {
		snap.CPUPercent = cpuPercents[0]
	}
	return snap, nil
}

// ResourceSampler periodically reads host CPU, memory, and disk usage and
// pushes each reading into the registry. A failed reading is logged and
// skipped; sampling failures never propagate to the caller.
type ResourceSampler struct {
	registry *Registry
	logger   *zap.Logger
	collect  Collector

	// lifecycle guards the running flag and the stop/done channels.
	lifecycle sync.Mutex
	running   bool
	stop      chan struct{}
	done      chan struct{}

	// snapMu guards only the current snapshot pointer. The collect call
	// itself never runs under this lock, so a slow OS read cannot block
	// a concurrent reader.
	snapMu  sync.RWMutex
	current *ResourceSnapshot
}

// NewResourceSampler creates a sampler pushing into the given registry.
// A nil collector selects the gopsutil-backed default.
func NewResourceSampler(registry *Registry, logger *zap.Logger, collect Collector) *ResourceSampler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if collect == nil {
		collect = gopsutilCollector
	}
	return &ResourceSampler{registry: registry, logger: logger, collect: collect}
}

// Start launches the background sampling loop. Calling Start while the
// loop is running is a contract violation and returns ErrAlreadyRunning
// without disturbing the existing loop.
func (s *ResourceSampler) Start(interval time.Duration) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.running {
		s.logger.Error("resource sampler start called while running")
		return ErrAlreadyRunning
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(interval, s.stop, s.done)
	s.logger.Info("resource sampler started", zap.Duration("interval", interval))
	return nil
}

func (s *ResourceSampler) run(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.sampleOnce()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.sampleOnce()
		}
	}
}

// sampleOnce performs one collection. Failures and collector panics are
// logged at warning level and the tick is skipped; the previous snapshot
// stays current and the loop keeps running.
func (s *ResourceSampler) sampleOnce() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("resource collector panicked, skipping tick", zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	snap, err := s.collect(ctx)
	if err != nil {
		s.logger.Warn("resource sample failed, skipping tick", zap.Error(err))
		return
	}

	s.snapMu.Lock()
	s.current = snap
	s.snapMu.Unlock()

	s.registry.RecordResourceSnapshot(*snap)
}

// Stop signals the loop to exit and waits up to stopTimeout for it to do
// so. It is idempotent: stopping a sampler that is not running logs and
// returns. After a clean return no further samples are written.
func (s *ResourceSampler) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if !s.running {
		s.logger.Debug("resource sampler stop called while not running")
		return
	}
	close(s.stop)
	select {
	case <-s.done:
		s.logger.Info("resource sampler stopped")
	case <-time.After(stopTimeout):
		s.logger.Error("resource sampler did not stop within timeout")
	}
	s.running = false
}

// Running reports whether the background loop is active.
func (s *ResourceSampler) Running() bool {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.running
}

// Current returns the last successfully collected snapshot, or nil before
// the first success. Only the pointer read is under the lock.
func (s *ResourceSampler) Current() *ResourceSnapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.current
}
