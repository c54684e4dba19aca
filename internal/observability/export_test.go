package observability

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestExportText_EmptyRegistry(t *testing.T) {
	r := NewRegistry(nil)
	if out := r.ExportText(); out != "" {
		t.Errorf("expected empty export for empty registry, got %q", out)
	}
}

func TestExportText_Format(t *testing.T) {
	r := NewRegistry(nil)
	r.RecordDiversity(0.42)
	r.RecordIterationFailure("backtest")
	r.RecordIterationFailure("timeout")

	out := r.ExportText()

	if n := strings.Count(out, "# HELP "+MetricDiversity+" "); n != 1 {
		t.Errorf("expected exactly one HELP line for diversity, got %d", n)
	}
	if n := strings.Count(out, "# TYPE "+MetricDiversity+" gauge"); n != 1 {
		t.Errorf("expected exactly one TYPE line for diversity, got %d", n)
	}
	if !strings.Contains(out, MetricDiversity+" 0.42 ") {
		t.Errorf("expected unlabeled diversity sample line, got:\n%s", out)
	}
	if !strings.Contains(out, MetricIterationFailures+`{kind="backtest"} 1 `) {
		t.Errorf("expected labeled failure line, got:\n%s", out)
	}
	if !strings.Contains(out, MetricIterationFailures+`{kind="timeout"} 1 `) {
		t.Errorf("expected one line per label set, got:\n%s", out)
	}

	// Metrics with no samples are skipped entirely.
	if strings.Contains(out, MetricCPUPercent) {
		t.Errorf("expected empty metric to be skipped, got:\n%s", out)
	}
}

func TestExportText_CounterTotals(t *testing.T) {
	r := NewRegistry(nil)
	r.RecordIterationStart(1)
	r.RecordIterationStart(2)
	r.RecordIterationStart(3)

	out := r.ExportText()
	if !strings.Contains(out, MetricIterationsTotal+" 3 ") {
		t.Errorf("expected exported total 3 after three events, got:\n%s", out)
	}
	if strings.Contains(out, MetricIterationsTotal+" 1 ") {
		t.Errorf("expected per-event increments not to be exported, got:\n%s", out)
	}
}

func TestExportText_OnlyLatestPerLabelSet(t *testing.T) {
	r := NewRegistry(nil)
	r.RecordDiversity(0.1)
	r.RecordDiversity(0.2)
	r.RecordDiversity(0.3)

	out := r.ExportText()
	if n := strings.Count(out, MetricDiversity+" 0.3 "); n != 1 {
		t.Errorf("expected exactly one sample line with the latest value, got:\n%s", out)
	}
	if strings.Contains(out, MetricDiversity+" 0.1 ") {
		t.Errorf("expected older samples to be omitted, got:\n%s", out)
	}
}

func TestExport_JSONStructure(t *testing.T) {
	r := NewRegistry(nil)
	r.RecordDiversity(0.42)
	r.RecordIterationStart(3)

	data, err := r.ExportJSON(false, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got JSONExport
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}

	m, ok := got.Metrics[MetricDiversity]
	if !ok {
		t.Fatalf("expected diversity metric in export, got %v", got.Metrics)
	}
	if m.Type != KindGauge || m.Latest != 0.42 {
		t.Errorf("expected gauge with latest 0.42, got type=%s latest=%g", m.Type, m.Latest)
	}
	if m.History != nil {
		t.Error("expected no history when includeHistory is false")
	}
	if _, ok := got.Metrics[MetricCPUPercent]; ok {
		t.Error("expected empty metrics to be skipped in JSON export")
	}
}

func TestExport_HistoryBounded(t *testing.T) {
	r := NewRegistry(nil)
	for i := 0; i < 10; i++ {
		r.RecordDiversity(float64(i) / 10)
	}

	out := r.Export(true, 3)
	m := out.Metrics[MetricDiversity]
	if len(m.History) != 3 {
		t.Fatalf("expected history bounded to 3 samples, got %d", len(m.History))
	}
	if m.History[2].Value != 0.9 {
		t.Errorf("expected newest sample last, got %g", m.History[2].Value)
	}
}

func TestExport_Uptime(t *testing.T) {
	r := NewRegistry(nil)
	time.Sleep(10 * time.Millisecond)
	out := r.Export(false, 0)
	if out.UptimeSeconds <= 0 {
		t.Errorf("expected positive uptime, got %g", out.UptimeSeconds)
	}
}
