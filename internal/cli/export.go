package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	exportFormat  string
	exportHistory bool
	exportLimit   int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all metrics in text or JSON format",
	Long: `Export every recorded metric.

The text format is the line-protocol exposition format scraped by external
tooling; the JSON format is the structured export, optionally including
bounded per-metric history.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Registry == nil {
			return fmt.Errorf("registry not initialized")
		}

		switch exportFormat {
		case "text":
			fmt.Print(Registry.ExportText())
			return nil
		case "json":
			data, err := Registry.ExportJSON(exportHistory, exportLimit)
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		default:
			return fmt.Errorf("unknown format %q (want text or json)", exportFormat)
		}
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "text", "export format: text or json")
	exportCmd.Flags().BoolVar(&exportHistory, "history", false, "include sample history (json only)")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 100, "history samples per metric, 0 for all (json only)")
	rootCmd.AddCommand(exportCmd)
}
