package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// migrateCmd applies schema migrations. openStore already runs the schema
// as a side effect of connecting; this command exists so a deployment
// script has an explicit, idempotent step to run before serve, mirroring
// the teacher's migrate command even though this schema has no versioned
// steps to choose between yet.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations",
	Long:  `Connects to the configured backend and applies schema migrations. Safe to run repeatedly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(rootCtx)
		if err != nil {
			return fmt.Errorf("migrating: %w", err)
		}
		defer st.Close()
		fmt.Println("schema is up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
