package observability

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ExportText renders every registered metric in the line-protocol text
// format scraped by external tooling:
//
//	# HELP <name> <help>
//	# TYPE <name> <kind>
//	<name>{label="value",...} <value> <unix_ms>
//
// Metrics appear in registration order. Only the latest sample per distinct
// label set is emitted, labels sorted by key so output is deterministic.
// Metrics with no samples are skipped entirely.
func (r *Registry) ExportText() string {
	var b strings.Builder
	for _, m := range r.snapshot() {
		latest := m.latestByLabelSet()
		if len(latest) == 0 {
			continue
		}
		fmt.Fprintf(&b, "# HELP %s %s\n", m.Name, m.Help)
		fmt.Fprintf(&b, "# TYPE %s %s\n", m.Name, m.Kind)
		for _, s := range latest {
			b.WriteString(m.Name)
			b.WriteString(formatLabels(s.Labels))
			b.WriteByte(' ')
			b.WriteString(strconv.FormatFloat(s.Value, 'g', -1, 64))
			b.WriteByte(' ')
			b.WriteString(strconv.FormatInt(s.Timestamp.UnixMilli(), 10))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// formatLabels renders a label set as {k="v",...} with keys sorted, or an
// empty string when there are no labels.
func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", k, labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

// JSONExport is the structured export envelope.
type JSONExport struct {
	Timestamp     time.Time             `json:"timestamp"`
	UptimeSeconds float64               `json:"uptime_seconds"`
	Metrics       map[string]JSONMetric `json:"metrics"`
}

// JSONMetric is one metric inside a JSONExport.
type JSONMetric struct {
	Type    MetricKind `json:"type"`
	Help    string     `json:"help"`
	Unit    string     `json:"unit,omitempty"`
	Latest  float64    `json:"latest"`
	History []Sample   `json:"history,omitempty"`
}

// Export builds the structured export. History is attached only when
// includeHistory is set, bounded to historyLimit samples per metric
// (zero or less means unbounded). Metrics with no samples are skipped,
// mirroring ExportText.
func (r *Registry) Export(includeHistory bool, historyLimit int) JSONExport {
	out := JSONExport{
		Timestamp:     time.Now(),
		UptimeSeconds: r.Uptime().Seconds(),
		Metrics:       make(map[string]JSONMetric),
	}
	for _, m := range r.snapshot() {
		latest, ok := m.Latest()
		if !ok {
			continue
		}
		jm := JSONMetric{Type: m.Kind, Help: m.Help, Unit: m.Unit, Latest: latest.Value}
		if includeHistory {
			jm.History = m.History(historyLimit)
		}
		out.Metrics[m.Name] = jm
	}
	return out
}

// ExportJSON marshals the structured export with indentation.
func (r *Registry) ExportJSON(includeHistory bool, historyLimit int) ([]byte, error) {
	data, err := json.MarshalIndent(r.Export(includeHistory, historyLimit), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling metrics export: %w", err)
	}
	return data, nil
}
