package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alphaloop/alphaloop/internal/cli"
	"github.com/alphaloop/alphaloop/internal/observability"
)

func TestNewApp_WiresServices(t *testing.T) {
	app, err := NewApp(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer app.Close()

	if app.Registry == nil || app.Sampler == nil || app.Diversity == nil ||
		app.Lifecycle == nil || app.Alerts == nil || app.Feeds == nil {
		t.Fatal("expected every service to be constructed")
	}

	if cli.Registry != app.Registry {
		t.Error("expected CLI registry to be wired")
	}
	if cli.Alerts != app.Alerts {
		t.Error("expected CLI alert engine to be wired")
	}
	if cli.Config == nil || cli.Config.Server.Addr != ":9191" {
		t.Error("expected CLI config to be wired with defaults")
	}
}

func TestNewApp_InvalidConfigRejected(t *testing.T) {
	dir := t.TempDir()
	bad := "collapse:\n  window: -3\n"
	if err := os.WriteFile(filepath.Join(dir, ".alphaloop.yaml"), []byte(bad), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := NewApp(dir); err == nil {
		t.Error("expected invalid config to fail app construction")
	}
}

func TestApp_DataSourcesDegradeWithoutData(t *testing.T) {
	app, err := NewApp(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer app.Close()

	// Nothing recorded yet: every accessor errors and no rule fires.
	if fired := app.Alerts.Evaluate(); len(fired) != 0 {
		t.Errorf("expected no alerts on a fresh app, got %v", fired)
	}
}

func TestApp_DataSourcesObserveLoopState(t *testing.T) {
	app, err := NewApp(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer app.Close()

	// Drive the loop surface far past the staleness threshold.
	app.Feeds.ChampionUpdated(0, 1.0, 1)
	app.Feeds.IterationStarted(1 + app.Config.Alerts.Staleness)
	if err := app.Feeds.DiversityObserved(21, 0.05, 1, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fired := app.Alerts.Evaluate()
	types := make(map[observability.AlertType]bool, len(fired))
	for _, a := range fired {
		types[a.Type] = true
	}
	if !types[observability.AlertChampionStaleness] {
		t.Errorf("expected staleness alert, got %v", fired)
	}
	if !types[observability.AlertDiversityCollapse] {
		t.Errorf("expected diversity collapse alert, got %v", fired)
	}
}

func TestApp_StartStopMonitors(t *testing.T) {
	app, err := NewApp(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer app.Close()

	if err := app.StartMonitors(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !app.Sampler.Running() {
		t.Error("expected sampler running after StartMonitors")
	}
	app.StopMonitors()
	if app.Sampler.Running() {
		t.Error("expected sampler stopped after StopMonitors")
	}
	// Stopping twice is safe.
	app.StopMonitors()
}

func TestResolveBasePath(t *testing.T) {
	t.Setenv("ALPHALOOP_HOME", "/tmp/loop-home")
	if got := ResolveBasePath(); got != "/tmp/loop-home" {
		t.Errorf("expected env override, got %q", got)
	}

	t.Setenv("ALPHALOOP_HOME", "")
	wd, _ := os.Getwd()
	if got := ResolveBasePath(); got != wd {
		t.Errorf("expected working directory %q, got %q", wd, got)
	}
}
