package observability

import (
	"testing"

	"pgregory.net/rapid"
)

// Feature: alphaloop, Property: Window Never Exceeds Configured Size
// No matter how many observations arrive, the retained window stays bounded
// and keeps the most recent observations in order.
func TestProperty_DiversityWindowBounded(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		window := rapid.IntRange(1, 10).Draw(rt, "window")
		values := rapid.SliceOfN(rapid.Float64Range(0, 1), 0, 40).Draw(rt, "values")

		d := NewDiversityTracker(NewRegistry(nil), nil, window, 0.1)
		for i, v := range values {
			if err := d.RecordDiversity(i, v, 1, 2); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		got := d.Window()
		want := len(values)
		if want > window {
			want = window
		}
		if len(got) != want {
			t.Fatalf("window length %d, want %d", len(got), want)
		}
		for i, snap := range got {
			idx := len(values) - want + i
			if snap.Diversity != values[idx] {
				t.Fatalf("window[%d] = %g, want %g", i, snap.Diversity, values[idx])
			}
			if snap.Iteration != idx {
				t.Fatalf("window[%d] iteration %d, want %d", i, snap.Iteration, idx)
			}
		}
	})
}

// Feature: alphaloop, Property: Collapse Iff Full Window Strictly Below Threshold
// CheckCollapse reports collapse exactly when the window is full and every
// retained observation is strictly below the threshold.
func TestProperty_CollapseMatchesDefinition(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		window := rapid.IntRange(1, 8).Draw(rt, "window")
		threshold := rapid.Float64Range(0.01, 1).Draw(rt, "threshold")
		values := rapid.SliceOfN(rapid.Float64Range(0, 1), 0, 30).Draw(rt, "values")

		d := NewDiversityTracker(NewRegistry(nil), nil, window, threshold)
		for i, v := range values {
			if err := d.RecordDiversity(i, v, 1, 2); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		retained := d.Window()
		want := len(retained) == window
		for _, snap := range retained {
			if snap.Diversity >= threshold {
				want = false
				break
			}
		}

		if got := d.CheckCollapse(); got != want {
			t.Fatalf("CheckCollapse() = %v, want %v for window %v threshold %g",
				got, want, retained, threshold)
		}
	})
}

// Feature: alphaloop, Property: Staleness Never Negative
// Staleness after an update is current minus update iteration, floored at zero.
func TestProperty_StalenessNeverNegative(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		updateAt := rapid.IntRange(0, 1000).Draw(rt, "updateAt")
		current := rapid.IntRange(0, 1000).Draw(rt, "current")

		d := NewDiversityTracker(NewRegistry(nil), nil, 0, 0)
		d.RecordChampionUpdate(updateAt, 1.0, 1.1)

		s, err := d.Staleness(current)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := current - updateAt
		if want < 0 {
			want = 0
		}
		if s != want {
			t.Fatalf("staleness %d, want %d", s, want)
		}
	})
}
