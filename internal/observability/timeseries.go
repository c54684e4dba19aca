package observability

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricKind classifies a metric series.
type MetricKind string

const (
	KindCounter   MetricKind = "counter"
	KindGauge     MetricKind = "gauge"
	KindHistogram MetricKind = "histogram"
	KindSummary   MetricKind = "summary"
)

// Sample is a single recorded value. Samples are immutable once appended;
// the label map is copied on the way in so callers cannot mutate it later.
type Sample struct {
	Value     float64           `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// Metric is a named, typed, append-only time series. A single goroutine
// writes each metric while any number may read, so the sample slice is
// guarded by an RWMutex. Counter appends accumulate: each recorded value is
// added to the running total for its label set, so the stored sample always
// carries the cumulative count.
type Metric struct {
	Name string
	Kind MetricKind
	Help string
	Unit string

	mu      sync.RWMutex
	samples []Sample
	totals  map[string]float64
}

func newMetric(name string, kind MetricKind, help, unit string) *Metric {
	return &Metric{Name: name, Kind: kind, Help: help, Unit: unit}
}

// append records a sample at the given timestamp. Labels are copied. For
// counters the value is an increment and the stored sample is the new
// cumulative total for that label set.
func (m *Metric) append(value float64, labels map[string]string, ts time.Time) {
	var copied map[string]string
	if len(labels) > 0 {
		copied = make(map[string]string, len(labels))
		for k, v := range labels {
			copied[k] = v
		}
	}
	m.mu.Lock()
	if m.Kind == KindCounter {
		if m.totals == nil {
			m.totals = make(map[string]float64)
		}
		key := labelKey(copied)
		m.totals[key] += value
		value = m.totals[key]
	}
	m.samples = append(m.samples, Sample{Value: value, Timestamp: ts, Labels: copied})
	m.mu.Unlock()
}

// Latest returns the most recent sample, or false if none has been recorded.
func (m *Metric) Latest() (Sample, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.samples) == 0 {
		return Sample{}, false
	}
	return m.samples[len(m.samples)-1], true
}

// Len reports the number of recorded samples.
func (m *Metric) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.samples)
}

// History returns a copy of the most recent limit samples, oldest first.
// A limit of zero or less returns the full history.
func (m *Metric) History(limit int) []Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.samples)
	if n == 0 {
		return nil
	}
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Sample, n)
	copy(out, m.samples[len(m.samples)-n:])
	return out
}

// Average returns the mean of the last window samples, or of all samples
// when window is zero or less. The second return is false when the series
// is empty.
func (m *Metric) Average(window int) (float64, bool) {
	values := m.values(window)
	if len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

// Percentile returns the p-th percentile (0-100, nearest-rank) over the last
// window samples, or all samples when window is zero or less.
func (m *Metric) Percentile(p float64, window int) (float64, bool) {
	values := m.values(window)
	if len(values) == 0 {
		return 0, false
	}
	sort.Float64s(values)
	if p <= 0 {
		return values[0], true
	}
	if p >= 100 {
		return values[len(values)-1], true
	}
	rank := int(p/100*float64(len(values))+0.5) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(values) {
		rank = len(values) - 1
	}
	return values[rank], true
}

// values copies the last window sample values. Callers own the slice.
func (m *Metric) values(window int) []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.samples)
	if window > 0 && window < n {
		n = window
	}
	out := make([]float64, 0, n)
	for _, s := range m.samples[len(m.samples)-n:] {
		out = append(out, s.Value)
	}
	return out
}

// latestByLabelSet returns the most recent sample for each distinct label
// combination, ordered by first appearance of the combination.
func (m *Metric) latestByLabelSet() []Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	latest := make(map[string]int)
	var order []string
	for i, s := range m.samples {
		key := labelKey(s.Labels)
		if _, seen := latest[key]; !seen {
			order = append(order, key)
		}
		latest[key] = i
	}
	out := make([]Sample, 0, len(order))
	for _, key := range order {
		out = append(out, m.samples[latest[key]])
	}
	return out
}

// reset drops all samples and counter totals. Only the registry-wide reset
// calls this.
func (m *Metric) reset() {
	m.mu.Lock()
	m.samples = nil
	m.totals = nil
	m.mu.Unlock()
}

// labelKey renders a label map as a canonical sorted key=value string so
// label sets compare deterministically regardless of map iteration order.
func labelKey(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	return b.String()
}
