package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Evaluate alert rules once and show the result",
	Long: `Run one alert evaluation cycle against the current monitoring state
and display any alerts that fired, plus the set of alert types whose
condition currently holds (including suppressed ones).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Alerts == nil {
			return fmt.Errorf("alert engine not initialized")
		}

		fired := Alerts.Evaluate()
		active := Alerts.ActiveAlerts()

		if len(fired) == 0 && len(active) == 0 {
			fmt.Println("No active alerts.")
			return nil
		}

		if len(fired) > 0 {
			fmt.Printf("%d alert(s) fired:\n\n", len(fired))
			for _, a := range fired {
				fmt.Printf("  [%s] %s\n", strings.ToUpper(string(a.Severity)), a.Message)
				fmt.Printf("         at %s, iteration %d\n\n",
					a.TriggeredAt.Format("2006-01-02 15:04:05 UTC"), a.Iteration)
			}
		}

		if len(active) > 0 {
			names := make([]string, len(active))
			for i, t := range active {
				names[i] = string(t)
			}
			fmt.Printf("Active conditions: %s\n", strings.Join(names, ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(alertsCmd)
}
