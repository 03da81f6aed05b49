package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	FramesReceived      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "dashboard_frames_received_total", Help: "Push channel frames routed, by message type"}, []string{"type"})
	FramesDropped       = prometheus.NewCounter(prometheus.CounterOpts{Name: "dashboard_frames_dropped_total", Help: "Malformed push channel frames discarded"})
	ConnectAttempts     = prometheus.NewCounter(prometheus.CounterOpts{Name: "dashboard_connect_attempts_total", Help: "Push channel dial attempts"})
	ReconnectsScheduled = prometheus.NewCounter(prometheus.CounterOpts{Name: "dashboard_reconnects_scheduled_total", Help: "Reconnection attempts scheduled after a close"})
	ConnectionState     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "dashboard_connection_state", Help: "0 disconnected, 1 connecting, 2 connected"})
	BootstrapAttempts   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "dashboard_bootstrap_attempts_total", Help: "Source list fetch attempts, by outcome"}, []string{"outcome"})
	JobStarts           = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "dashboard_job_starts_total", Help: "Job start requests, by outcome"}, []string{"outcome"})
	ResultRows          = prometheus.NewGauge(prometheus.GaugeOpts{Name: "dashboard_result_rows", Help: "Rows in the current result set"})
	ResultLoadFailures  = prometheus.NewCounter(prometheus.CounterOpts{Name: "dashboard_result_load_failures_total", Help: "Failed result set fetches"})
	Downloads           = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "dashboard_downloads_total", Help: "Result archive downloads, by outcome"}, []string{"outcome"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			FramesReceived,
			FramesDropped,
			ConnectAttempts,
			ReconnectsScheduled,
			ConnectionState,
			BootstrapAttempts,
			JobStarts,
			ResultRows,
			ResultLoadFailures,
			Downloads,
		)
	})
	return promhttp.Handler()
}
