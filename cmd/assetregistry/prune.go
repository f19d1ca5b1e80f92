package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Mark cache states outside configured roots as missing",
	Long:  `A one-off mark-missing pass over every cache state whose file path falls outside the configured root directories, for cleaning up after a roots.yaml change.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(rootCtx)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()

		resolver := buildResolver()
		marked, err := st.MarkCacheStatesMissingOutsidePrefixes(rootCtx, resolver.AllPrefixes())
		if err != nil {
			return fmt.Errorf("pruning cache states: %w", err)
		}
		fmt.Printf("marked %d cache state(s) missing\n", marked)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pruneCmd)
}
