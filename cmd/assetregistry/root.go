package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/djhieudonald74-stack/asset-registry/internal/config"
	"github.com/djhieudonald74-stack/asset-registry/internal/folders"
	"github.com/djhieudonald74-stack/asset-registry/internal/model"
	"github.com/djhieudonald74-stack/asset-registry/internal/store"
	"github.com/djhieudonald74-stack/asset-registry/internal/store/sqlstore"
	"github.com/djhieudonald74-stack/asset-registry/internal/telemetry"
)

// Version is set at build time via -ldflags, the way the teacher's cmd/bd
// stamps its own Version/Build vars.
var Version = "dev"

var (
	cfgFile    string
	verbose    bool
	cfg        *config.Config
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:   "assetregistry",
	Short: "assetregistry - content-addressed asset registry",
	Long:  `A content-addressed registry for model and media assets: scan root directories, dedupe by hash, and serve an HTTP API over the result.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		logger := telemetry.NewLogger(os.Stderr, level)
		rootCtx = telemetry.WithLogger(rootCtx, logger)

		loaded, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (defaults + ASSETREG_* env vars otherwise)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
	rootCmd.Flags().BoolP("version", "V", false, "print version information")

	rootCmd.Run = func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("assetregistry version %s\n", Version)
			return
		}
		_ = cmd.Help()
	}
}

// openStore opens the configured backend, applying schema migrations as a
// side effect of sqlstore.OpenSQLite/OpenPostgres.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Backend {
	case "postgres":
		return sqlstore.OpenPostgres(ctx, cfg.PostgresDSN, cfg.BindParamCeiling)
	default:
		return sqlstore.OpenSQLite(ctx, cfg.SQLitePath, cfg.BindParamCeiling)
	}
}

// buildResolver turns the configured bucket->directories map into the
// folders.Resolver every root-aware command needs.
func buildResolver() *folders.Resolver {
	roots := map[model.Root][]string{
		model.RootModels: cfg.RootPrefixes("models"),
		model.RootInput:  cfg.RootPrefixes("input"),
		model.RootOutput: cfg.RootPrefixes("output"),
	}
	return folders.New(roots)
}

func configuredRoots() []model.Root {
	roots := make([]model.Root, 0, 3)
	for _, bucket := range []model.Root{model.RootModels, model.RootInput, model.RootOutput} {
		if len(cfg.RootPrefixes(string(bucket))) > 0 {
			roots = append(roots, bucket)
		}
	}
	return roots
}
