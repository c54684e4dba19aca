package observability

import (
	"errors"
	"testing"
	"time"
)

func newTestFeeds() (*Feeds, *Registry, *DiversityTracker, *AlertEngine) {
	r := NewRegistry(nil)
	d := NewDiversityTracker(r, nil, DefaultCollapseWindow, DefaultCollapseThreshold)
	e := NewAlertEngine(r, nil, DataSources{}, DefaultAlertThresholds(), 0)
	return NewFeeds(r, d, e), r, d, e
}

func TestFeeds_IterationFlow(t *testing.T) {
	f, r, _, e := newTestFeeds()

	f.IterationStarted(1)
	f.IterationSucceeded(1.5, 30*time.Second)
	f.IterationStarted(2)
	f.IterationFailed("sandbox")

	if f.CurrentIteration() != 2 {
		t.Errorf("expected current iteration 2, got %d", f.CurrentIteration())
	}
	rate, ok := r.SuccessRate(0)
	if !ok || rate != 0.5 {
		t.Errorf("expected success rate 0.5, got %g (ok=%v)", rate, ok)
	}

	// Outcomes also feed the alert engine's fallback ring.
	rate, ok, err := e.successRate()
	if err != nil || !ok || rate != 0.5 {
		t.Errorf("expected engine ring rate 0.5, got %g (ok=%v err=%v)", rate, ok, err)
	}
}

func TestFeeds_ChampionUpdated(t *testing.T) {
	f, r, d, _ := newTestFeeds()

	f.IterationStarted(9)
	f.ChampionUpdated(1.0, 1.3, 9)

	s, err := d.Staleness(12)
	if err != nil || s != 3 {
		t.Errorf("expected staleness 3, got %d (err=%v)", s, err)
	}
	if v, _ := r.Latest(MetricChampionScore); v != 1.3 {
		t.Errorf("expected champion score 1.3, got %g", v)
	}
}

func TestFeeds_DiversityObservedValidates(t *testing.T) {
	f, r, _, _ := newTestFeeds()

	if err := f.DiversityObserved(1, 0.6, 6, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := r.Latest(MetricDiversity); v != 0.6 {
		t.Errorf("expected diversity gauge 0.6, got %g", v)
	}

	if err := f.DiversityObserved(2, 1.4, 6, 10); !errors.Is(err, ErrDiversityRange) {
		t.Errorf("expected ErrDiversityRange, got %v", err)
	}
}

func TestFeeds_NilAlertEngine(t *testing.T) {
	r := NewRegistry(nil)
	d := NewDiversityTracker(r, nil, 0, 0)
	f := NewFeeds(r, d, nil)

	// Outcome feeding is optional; no engine means no panic.
	f.IterationSucceeded(1.0, time.Second)
	f.IterationFailed("timeout")
}
