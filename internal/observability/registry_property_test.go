package observability

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

// Feature: alphaloop, Property: Average Stays Within Sample Bounds
// The mean over any window never leaves the [min, max] range of the values.
func TestProperty_AverageWithinBounds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		values := rapid.SliceOfN(rapid.Float64Range(0, 1000), 1, 50).Draw(rt, "values")
		window := rapid.IntRange(0, 60).Draw(rt, "window")

		m := newMetric("prop_metric", KindGauge, "", "")
		lo, hi := values[0], values[0]
		for _, v := range values {
			m.append(v, nil, time.Now())
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}

		avg, ok := m.Average(window)
		if !ok {
			t.Fatal("average must exist for a non-empty series")
		}
		if avg < lo || avg > hi {
			t.Fatalf("average %g outside sample bounds [%g, %g]", avg, lo, hi)
		}
	})
}

// Feature: alphaloop, Property: Percentile Is A Recorded Value
// Nearest-rank percentiles always return one of the recorded values, and
// percentiles are monotone in p.
func TestProperty_PercentileIsRecordedValue(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		values := rapid.SliceOfN(rapid.Float64Range(-100, 100), 1, 40).Draw(rt, "values")
		p := rapid.Float64Range(0, 100).Draw(rt, "p")

		m := newMetric("prop_metric", KindHistogram, "", "")
		recorded := make(map[float64]bool, len(values))
		for _, v := range values {
			m.append(v, nil, time.Now())
			recorded[v] = true
		}

		got, ok := m.Percentile(p, 0)
		if !ok {
			t.Fatal("percentile must exist for a non-empty series")
		}
		if !recorded[got] {
			t.Fatalf("percentile %g returned %g, which was never recorded", p, got)
		}

		p50, _ := m.Percentile(50, 0)
		p95, _ := m.Percentile(95, 0)
		if p50 > p95 {
			t.Fatalf("p50 %g exceeds p95 %g", p50, p95)
		}
	})
}

// Feature: alphaloop, Property: Success Rate Matches Outcome Counts
// The derived success rate always equals successes divided by outcomes and
// stays in [0, 1].
func TestProperty_SuccessRateMatchesOutcomes(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		outcomes := rapid.SliceOfN(rapid.Bool(), 1, 60).Draw(rt, "outcomes")

		r := NewRegistry(nil)
		var successes int
		for _, ok := range outcomes {
			if ok {
				r.RecordIterationSuccess(1.0, time.Second)
				successes++
			} else {
				r.RecordIterationFailure("generation")
			}
		}

		rate, ok := r.SuccessRate(0)
		if !ok {
			t.Fatal("success rate must exist after recorded outcomes")
		}
		want := float64(successes) / float64(len(outcomes))
		if diff := rate - want; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("success rate %g, want %g", rate, want)
		}
		if rate < 0 || rate > 1 {
			t.Fatalf("success rate %g outside [0, 1]", rate)
		}
	})
}

// Feature: alphaloop, Property: History Preserves Recording Order
// History returns the newest samples with their relative order intact.
func TestProperty_HistoryPreservesOrder(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 40).Draw(rt, "n")
		limit := rapid.IntRange(0, 50).Draw(rt, "limit")

		m := newMetric("prop_metric", KindGauge, "", "")
		for i := 0; i < n; i++ {
			m.append(float64(i), nil, time.Now())
		}

		h := m.History(limit)
		want := n
		if limit > 0 && limit < n {
			want = limit
		}
		if len(h) != want {
			t.Fatalf("history length %d, want %d", len(h), want)
		}
		for i, s := range h {
			if s.Value != float64(n-want+i) {
				t.Fatalf("history[%d] = %g, want %g", i, s.Value, float64(n-want+i))
			}
		}
	})
}
