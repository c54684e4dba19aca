package cli

import (
	"testing"

	"github.com/alphaloop/alphaloop/internal/observability"
)

func TestLoadData_AlertsVisibleWhileSuppressed(t *testing.T) {
	Registry = observability.NewRegistry(nil)
	Alerts = observability.NewAlertEngine(Registry, nil, observability.DataSources{
		MemoryPercent: func() (float64, error) { return 95, nil },
	}, observability.DefaultAlertThresholds(), 0)
	Sampler = nil
	Diversity = nil
	t.Cleanup(func() {
		Registry = nil
		Alerts = nil
	})

	// Two engine cycles: the second fires nothing because of suppression,
	// but the condition still holds.
	Alerts.Evaluate()
	Alerts.Evaluate()

	triggered, _ := Registry.Latest(observability.MetricAlertsTriggered)

	for i := 0; i < 2; i++ {
		msg := loadData()
		data, ok := msg.(dataLoadedMsg)
		if !ok {
			t.Fatalf("unexpected message type %T", msg)
		}
		if len(data.alerts) != 1 {
			t.Fatalf("refresh %d: expected the held condition to stay visible, got %d alerts",
				i, len(data.alerts))
		}
		row := data.alerts[0]
		if row.severity != string(observability.SeverityCritical) || row.message == "" {
			t.Errorf("refresh %d: expected full alert detail, got %+v", i, row)
		}
	}

	// Rendering is a pure read: refreshes never bump the alert counter.
	after, _ := Registry.Latest(observability.MetricAlertsTriggered)
	if after != triggered {
		t.Errorf("expected alert counter unchanged by refreshes, got %g -> %g", triggered, after)
	}
}
