package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/alphaloop/alphaloop/internal/observability"
)

var metricsJSON bool

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Display current loop and resource metrics",
	Long: `Display the latest value of every metric with at least one sample.

Covers loop iterations, success rate, champion score and staleness,
population diversity, host resources, and sandbox container counts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Registry == nil {
			return fmt.Errorf("registry not initialized")
		}

		if metricsJSON {
			data, err := Registry.ExportJSON(false, 0)
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		export := Registry.Export(false, 0)
		fmt.Printf("Metrics (uptime %s)\n\n", time.Duration(export.UptimeSeconds*float64(time.Second)).Round(time.Second))
		if len(export.Metrics) == 0 {
			fmt.Println("  No samples recorded yet.")
			return nil
		}
		for _, name := range metricDisplayOrder(export) {
			m := export.Metrics[name]
			unit := m.Unit
			if unit != "" {
				unit = " " + unit
			}
			fmt.Printf("  %-36s %g%s\n", name+":", m.Latest, unit)
		}

		if rate, ok := Registry.SuccessRate(0); ok {
			fmt.Printf("\n  %-36s %.2f\n", "derived success rate:", rate)
		}
		if p95, ok := Registry.Percentile(observability.MetricIterationDuration, 95, 0); ok {
			fmt.Printf("  %-36s %.2fs\n", "iteration duration p95:", p95)
		}
		return nil
	},
}

// metricDisplayOrder returns metric names sorted for stable output.
func metricDisplayOrder(export observability.JSONExport) []string {
	names := make([]string, 0, len(export.Metrics))
	for name := range export.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "output metrics as JSON")
	rootCmd.AddCommand(metricsCmd)
}
