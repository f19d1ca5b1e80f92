package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/djhieudonald74-stack/asset-registry/internal/eventsink"
	"github.com/djhieudonald74-stack/asset-registry/internal/model"
	"github.com/djhieudonald74-stack/asset-registry/internal/scanner"
)

var scanPhase string

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a one-shot scan and block until it finishes",
	Long:  `Triggers a FAST, FULL, or ENRICH scan directly against the configured store and waits for it to complete, the way a deployment script would seed a fresh database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		phase := scanner.Phase(strings.ToUpper(scanPhase))
		switch phase {
		case scanner.PhaseFast, scanner.PhaseFull, scanner.PhaseEnrich:
		default:
			return fmt.Errorf("--phase must be FAST, FULL, or ENRICH (got %q)", scanPhase)
		}

		st, err := openStore(rootCtx)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()

		resolver := buildResolver()
		sup := scanner.New(st, resolver, eventsink.Logging{}, cfg.WorkerPoolSize, cfg.EventThrottle, nil)

		started := sup.Start(rootCtx, scanner.Options{
			Phase:             phase,
			Roots:             configuredRoots(),
			EnrichTargetLevel: model.EnrichmentHashed,
			IngestBatchSize:   cfg.IngestBatchSize,
			EnrichBatchSize:   cfg.EnrichBatchSize,
		})
		if !started {
			return fmt.Errorf("a scan is already running")
		}
		sup.Wait(24 * time.Hour)

		_, progress := sup.Status()
		fmt.Printf("scanned=%d created=%d skipped=%d errors=%d\n", progress.Scanned, progress.Created, progress.Skipped, len(progress.Errors))
		for _, e := range progress.Errors {
			fmt.Fprintln(cmd.ErrOrStderr(), "error:", e)
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanPhase, "phase", "FAST", "scan phase: FAST, FULL, or ENRICH")
	rootCmd.AddCommand(scanCmd)
}
