// Package config loads the typed configuration this service runs with: database
// DSN, per-root base directories, batch sizes, and worker pool size. Grounded on
// the teacher's config packages (internal/configfile, cmd/bd/config.go), which load
// defaults and let environment variables override them; here that's done with
// spf13/viper instead of a hand-rolled JSON reader.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process-wide typed configuration.
type Config struct {
	// HTTPAddr is the address the HTTP surface listens on.
	HTTPAddr string

	// Backend selects the store implementation: "postgres" or "sqlite".
	Backend string
	// PostgresDSN is used when Backend == "postgres".
	PostgresDSN string
	// SQLitePath is used when Backend == "sqlite" (":memory:" for ephemeral/test).
	SQLitePath string

	// Roots maps a bucket name (models/input/output) to its base directories.
	Roots map[string][]string

	// WorkerPoolSize bounds concurrent hashing/stat/IO work.
	WorkerPoolSize int

	// IngestBatchSize is the FAST-phase ingest batch size (spec default ~500).
	IngestBatchSize int
	// EnrichBatchSize is the ENRICH-phase batch size (spec default ~100).
	EnrichBatchSize int
	// BindParamCeiling bounds rows_per_statement * columns for bulk inserts.
	BindParamCeiling int

	// EventThrottle is the minimum interval between seed.progress events.
	EventThrottle time.Duration

	// WatchEnabled turns on the fsnotify-triggered rescan trigger.
	WatchEnabled bool
	// WatchDebounce is how long the watcher waits after the last event before
	// requesting a scan.
	WatchDebounce time.Duration
}

// Load reads defaults, an optional config file, and ASSETREG_* environment
// variables into a Config, mirroring the teacher's file-then-env precedence.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ASSETREG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http_addr", ":8188")
	v.SetDefault("backend", "sqlite")
	v.SetDefault("sqlite_path", "assetregistry.db")
	v.SetDefault("worker_pool_size", 16)
	v.SetDefault("ingest_batch_size", 500)
	v.SetDefault("enrich_batch_size", 100)
	v.SetDefault("bind_param_ceiling", 800)
	v.SetDefault("event_throttle_ms", 1000)
	v.SetDefault("watch_enabled", false)
	v.SetDefault("watch_debounce_ms", 500)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
		}
	}

	roots := map[string][]string{}
	for _, bucket := range []string{"models", "input", "output"} {
		key := "roots." + bucket
		if dirs := v.GetStringSlice(key); len(dirs) > 0 {
			roots[bucket] = dirs
		}
	}

	cfg := &Config{
		HTTPAddr:         v.GetString("http_addr"),
		Backend:          v.GetString("backend"),
		PostgresDSN:      v.GetString("postgres_dsn"),
		SQLitePath:       v.GetString("sqlite_path"),
		Roots:            roots,
		WorkerPoolSize:   v.GetInt("worker_pool_size"),
		IngestBatchSize:  v.GetInt("ingest_batch_size"),
		EnrichBatchSize:  v.GetInt("enrich_batch_size"),
		BindParamCeiling: v.GetInt("bind_param_ceiling"),
		EventThrottle:    time.Duration(v.GetInt("event_throttle_ms")) * time.Millisecond,
		WatchEnabled:     v.GetBool("watch_enabled"),
		WatchDebounce:    time.Duration(v.GetInt("watch_debounce_ms")) * time.Millisecond,
	}

	if cfg.Backend != "postgres" && cfg.Backend != "sqlite" {
		return nil, fmt.Errorf("unsupported backend %q (want postgres or sqlite)", cfg.Backend)
	}
	return cfg, nil
}

// RootPrefixes returns the configured base directories for a bucket.
func (c *Config) RootPrefixes(bucket string) []string {
	return c.Roots[bucket]
}
