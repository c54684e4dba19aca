package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var cleanupDryRun bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove orphaned sandbox containers",
	Long: `Scan the container runtime for sandbox-owned containers that have
exited or died, and remove them. Each container's ownership label is
re-verified immediately before removal; containers failing re-verification
are skipped. With --dry-run only the scan is performed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Lifecycle == nil {
			return fmt.Errorf("lifecycle tracker not initialized")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		orphans := Lifecycle.ScanOrphaned(ctx)
		if len(orphans) == 0 {
			fmt.Println("No orphaned sandbox containers found.")
			return nil
		}

		fmt.Printf("%d orphaned container(s):\n", len(orphans))
		for _, id := range orphans {
			fmt.Printf("  %s\n", shortID(id))
		}

		if cleanupDryRun {
			fmt.Println("\nDry run, nothing removed.")
			return nil
		}

		cleaned := Lifecycle.Cleanup(ctx, orphans)
		fmt.Printf("\nRemoved %d of %d.\n", len(cleaned), len(orphans))
		if failures := Lifecycle.CleanupFailures(); len(failures) > 0 {
			fmt.Printf("Failed removals (will retry on next cleanup):\n")
			for _, id := range failures {
				fmt.Printf("  %s\n", shortID(id))
			}
		}
		return nil
	},
}

// shortID truncates container IDs for display.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "scan only, remove nothing")
	rootCmd.AddCommand(cleanupCmd)
}
