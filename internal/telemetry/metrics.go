package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the module's counters/histograms. The ingest package records
// the four Ingest* counters; ScanDuration and ReconcileMissing are registered
// but no package records them. Grounded on the attribute-tagged otel counters the teacher
// builds in internal/storage/dolt/store.go.
type Metrics struct {
	Registry          *sdkmetric.MeterProvider
	IngestBatches     metric.Int64Counter
	IngestBatchErrors metric.Int64Counter
	IngestWinners     metric.Int64Counter
	IngestLosers      metric.Int64Counter
	ScanDuration      metric.Float64Histogram
	ReconcileMissing  metric.Int64Counter
}

// NewMetrics builds a Prometheus-backed MeterProvider and the counters this
// module's components use. The exporter registers with the default Prometheus
// registry, which the HTTP surface serves at /metrics via promhttp.Handler().
func NewMetrics() (*Metrics, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("assetregistry")

	ingestBatches, err := meter.Int64Counter("ingest_batches_total",
		metric.WithDescription("bulk ingest batches run, failed ones included"))
	if err != nil {
		return nil, err
	}
	ingestBatchErrors, err := meter.Int64Counter("ingest_batch_errors_total",
		metric.WithDescription("bulk ingest batches that rolled back"))
	if err != nil {
		return nil, err
	}
	ingestWinners, err := meter.Int64Counter("ingest_winner_paths_total")
	if err != nil {
		return nil, err
	}
	ingestLosers, err := meter.Int64Counter("ingest_loser_paths_total")
	if err != nil {
		return nil, err
	}
	scanDuration, err := meter.Float64Histogram("scan_phase_duration_seconds")
	if err != nil {
		return nil, err
	}
	reconcileMissing, err := meter.Int64Counter("reconcile_marked_missing_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		Registry:          provider,
		IngestBatches:     ingestBatches,
		IngestBatchErrors: ingestBatchErrors,
		IngestWinners:     ingestWinners,
		IngestLosers:      ingestLosers,
		ScanDuration:      scanDuration,
		ReconcileMissing:  reconcileMissing,
	}, nil
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.Registry == nil {
		return nil
	}
	return m.Registry.Shutdown(ctx)
}
