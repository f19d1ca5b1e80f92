package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusHistoryLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print recent scanner run history",
	Long:  `Connects to the configured store and prints the most recent scanner runs recorded in scanner_runs, independent of whether a serve process is currently running.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(rootCtx)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()

		runs, err := st.ListScannerRuns(rootCtx, statusHistoryLimit)
		if err != nil {
			return fmt.Errorf("listing scanner runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("no scanner runs recorded")
			return nil
		}
		for _, run := range runs {
			fmt.Printf("%s  phase=%-6s state=%-11s scanned=%-6d created=%-6d skipped=%-6d errors=%d\n",
				run.StartedAt.Format("2006-01-02T15:04:05Z07:00"), run.Phase, run.State, run.Scanned, run.Created, run.Skipped, run.ErrorCount)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusHistoryLimit, "limit", 20, "number of scanner runs to show")
	rootCmd.AddCommand(statusCmd)
}
