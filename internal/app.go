// Package internal provides the App struct that wires the observability
// core together and initializes the CLI layer.
package internal

import (
	"context"
	"errors"
	"os"

	"go.uber.org/zap"

	"github.com/alphaloop/alphaloop/internal/cli"
	"github.com/alphaloop/alphaloop/internal/config"
	"github.com/alphaloop/alphaloop/internal/logging"
	"github.com/alphaloop/alphaloop/internal/observability"
	"github.com/alphaloop/alphaloop/internal/sandbox"
)

// App holds every service of the monitoring core.
type App struct {
	BasePath string
	Config   *config.Config
	Logger   *zap.Logger

	Registry  *observability.Registry
	Sampler   *observability.ResourceSampler
	Diversity *observability.DiversityTracker
	Lifecycle *observability.LifecycleTracker
	Alerts    *observability.AlertEngine
	Feeds     *observability.Feeds
	Runtime   sandbox.Runtime
}

// NewApp creates and wires all components. basePath is where the
// configuration file lives (typically the repository the loop runs in).
func NewApp(basePath string) (*App, error) {
	cfg, err := config.Load(basePath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	app := &App{BasePath: basePath, Config: cfg, Logger: logger}

	app.Registry = observability.NewRegistry(logger.Named("registry"))
	app.Sampler = observability.NewResourceSampler(app.Registry, logger.Named("sampler"), nil)
	app.Diversity = observability.NewDiversityTracker(
		app.Registry, logger.Named("diversity"),
		cfg.Collapse.Window, cfg.Collapse.Threshold)

	app.Runtime = sandbox.NewDockerCLI(cfg.Sandbox.Binary, nil, logger.Named("sandbox"))
	app.Lifecycle = observability.NewLifecycleTracker(app.Runtime, app.Registry, logger.Named("lifecycle"))

	app.Alerts = observability.NewAlertEngine(
		app.Registry, logger.Named("alerts"),
		app.dataSources(),
		observability.AlertThresholds{
			MemoryPercent:      cfg.Alerts.MemoryPercent,
			Diversity:          cfg.Alerts.Diversity,
			Staleness:          cfg.Alerts.Staleness,
			SuccessRate:        cfg.Alerts.SuccessRate,
			SuccessRateWindow:  cfg.Alerts.SuccessRateWindow,
			OrphanedContainers: cfg.Alerts.OrphanedContainers,
		},
		cfg.Alerts.Suppression,
	)

	app.Feeds = observability.NewFeeds(app.Registry, app.Diversity, app.Alerts)

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.Config = cfg
	cli.Registry = app.Registry
	cli.Sampler = app.Sampler
	cli.Diversity = app.Diversity
	cli.Lifecycle = app.Lifecycle
	cli.Alerts = app.Alerts
	cli.Feeds = app.Feeds

	return app, nil
}

// dataSources builds the accessor callbacks the alert engine polls. Each
// accessor reports an error instead of a value while its underlying
// component has no data yet.
func (a *App) dataSources() observability.DataSources {
	return observability.DataSources{
		MemoryPercent: func() (float64, error) {
			snap := a.Sampler.Current()
			if snap == nil {
				return 0, errors.New("no resource sample collected yet")
			}
			return snap.MemoryPercent, nil
		},
		Diversity: func() (float64, error) {
			v, ok := a.Diversity.Current()
			if !ok {
				return 0, errors.New("no diversity observation recorded yet")
			}
			return v, nil
		},
		Staleness: func() (int, error) {
			iter, _ := a.Registry.Latest(observability.MetricCurrentIteration)
			return a.Diversity.Staleness(int(iter))
		},
		SuccessRate: func() (float64, error) {
			v, ok := a.Registry.SuccessRate(a.Config.Alerts.SuccessRateWindow)
			if !ok {
				return 0, errors.New("no iteration outcomes recorded yet")
			}
			return v, nil
		},
		OrphanedContainers: func() (int, error) {
			return a.Lifecycle.OrphanedCount(context.Background()), nil
		},
		Iteration: func() int {
			v, _ := a.Registry.Latest(observability.MetricCurrentIteration)
			return int(v)
		},
	}
}

// StartMonitors launches the three background loops.
func (a *App) StartMonitors() error {
	if err := a.Sampler.Start(a.Config.Sampler.Interval); err != nil {
		return err
	}
	if err := a.Lifecycle.Start(a.Config.Sandbox.RescanInterval); err != nil {
		a.Sampler.Stop()
		return err
	}
	if err := a.Alerts.Start(a.Config.Alerts.EvaluateInterval); err != nil {
		a.Lifecycle.Stop()
		a.Sampler.Stop()
		return err
	}
	return nil
}

// StopMonitors stops the background loops in reverse start order. It is
// safe to call when none are running.
func (a *App) StopMonitors() {
	a.Alerts.Stop()
	a.Lifecycle.Stop()
	a.Sampler.Stop()
}

// Close flushes the logger.
func (a *App) Close() error {
	_ = a.Logger.Sync()
	return nil
}

// ResolveBasePath determines where the configuration file is looked up:
// the ALPHALOOP_HOME environment variable when set, otherwise the current
// directory.
func ResolveBasePath() string {
	if home := os.Getenv("ALPHALOOP_HOME"); home != "" {
		return home
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return dir
}
