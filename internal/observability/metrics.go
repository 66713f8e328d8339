package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for exporter self-monitoring.
// It uses a custom registry so the GPU feed on /metrics stays free of
// exporter internals.
type Metrics struct {
	Registry *prometheus.Registry

	// Scrape metrics
	ScrapesTotal   prometheus.Counter
	ScrapeDuration prometheus.Histogram

	// Query metrics
	QueryDuration      prometheus.Histogram
	QueryFailuresTotal *prometheus.CounterVec
	QueriesCoalesced   prometheus.Counter

	// Parse metrics
	RowsSkippedTotal prometheus.Counter
	Devices          prometheus.Gauge

	// Build metrics
	Info *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all Prometheus metrics
// registered on a custom registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		ScrapesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nvsmi_exporter_scrapes_total",
			Help: "Total number of /metrics requests served.",
		}),
		ScrapeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nvsmi_exporter_scrape_duration_seconds",
			Help:    "Duration of /metrics requests in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nvsmi_exporter_query_duration_seconds",
			Help:    "Duration of nvidia-smi invocations in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		QueryFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nvsmi_exporter_query_failures_total",
			Help: "Total number of failed nvidia-smi invocations.",
		}, []string{"code"}),
		QueriesCoalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nvsmi_exporter_queries_coalesced_total",
			Help: "Total number of scrapes that shared an in-flight nvidia-smi invocation.",
		}),

		RowsSkippedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nvsmi_exporter_rows_skipped_total",
			Help: "Total number of nvidia-smi output rows dropped for having too few fields.",
		}),
		Devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nvsmi_exporter_devices",
			Help: "Number of GPU devices rendered by the most recent query.",
		}),

		Info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nvsmi_exporter_info",
			Help: "Exporter instance information (always 1).",
		}, []string{"instance_id"}),
	}

	reg.MustRegister(
		m.ScrapesTotal,
		m.ScrapeDuration,
		m.QueryDuration,
		m.QueryFailuresTotal,
		m.QueriesCoalesced,
		m.RowsSkippedTotal,
		m.Devices,
		m.Info,
	)

	return m
}
