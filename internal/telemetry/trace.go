package telemetry

import "go.opentelemetry.io/otel"

// Tracer is the single tracer the ingest/reconcile/scanner packages pull spans
// from, mirroring the teacher's package-level otel.Tracer(...) call in
// internal/storage/dolt/store.go.
var Tracer = otel.Tracer("github.com/djhieudonald74-stack/asset-registry")
