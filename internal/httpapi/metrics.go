package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsHandler exposes the OpenTelemetry Prometheus exporter's default
// registry (spec §6 ADD: "GET /metrics — Prometheus-format OpenTelemetry
// metrics exposition").
func metricsHandler() http.Handler {
	return promhttp.Handler()
}
