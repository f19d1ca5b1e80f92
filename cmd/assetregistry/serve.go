package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/djhieudonald74-stack/asset-registry/internal/assetsvc"
	"github.com/djhieudonald74-stack/asset-registry/internal/eventsink"
	"github.com/djhieudonald74-stack/asset-registry/internal/httpapi"
	"github.com/djhieudonald74-stack/asset-registry/internal/model"
	"github.com/djhieudonald74-stack/asset-registry/internal/scanner"
	"github.com/djhieudonald74-stack/asset-registry/internal/telemetry"
	"github.com/djhieudonald74-stack/asset-registry/internal/watch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  `Start the HTTP server exposing the asset registry's REST API, health checks, and metrics. Runs until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(rootCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	log := telemetry.L(ctx)

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metrics.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("shutting down metrics provider")
		}
	}()

	st, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	resolver := buildResolver()
	sink := eventsink.Logging{}
	sup := scanner.New(st, resolver, sink, cfg.WorkerPoolSize, cfg.EventThrottle, metrics)
	svc := assetsvc.New(st, resolver, cfg.WorkerPoolSize, metrics)

	uploadDir := os.TempDir()
	srv := httpapi.NewServer(svc, sup, st, resolver, nil, uploadDir)

	var watcher *watch.Watcher
	if cfg.WatchEnabled {
		watcher, err = watch.New(cfg.WatchDebounce, func(triggerCtx context.Context, roots []model.Root) {
			if sup.State() != scanner.StateIdle {
				return
			}
			sup.Start(triggerCtx, scanner.Options{
				Phase:             scanner.PhaseFast,
				Roots:             roots,
				EnrichTargetLevel: model.EnrichmentHashed,
				IngestBatchSize:   cfg.IngestBatchSize,
				EnrichBatchSize:   cfg.EnrichBatchSize,
			})
		})
		if err != nil {
			return fmt.Errorf("starting filesystem watcher: %w", err)
		}
		for _, bucket := range configuredRoots() {
			for _, dir := range cfg.RootPrefixes(string(bucket)) {
				if err := watcher.AddRoot(bucket, dir); err != nil {
					log.Warn().Err(err).Str("dir", dir).Msg("watching root directory")
				}
			}
		}
		go watcher.Run(ctx)
		defer watcher.Close()
	}

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Mux(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	listener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.HTTPAddr, err)
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Msg("serving")
	if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving HTTP: %w", err)
	}
	return nil
}
