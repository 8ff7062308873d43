package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Internal counters for the download engine. Exporting them over HTTP is the
// host application's concern; the engine only increments.

var (
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vortex",
		Name:      "jobs_processed_total",
		Help:      "Download jobs processed, by terminal result.",
	}, []string{"result"})

	DownloadErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vortex",
		Name:      "download_errors_total",
		Help:      "Provider fetch errors, by provider and error kind.",
	}, []string{"provider", "kind"})

	RetryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vortex",
		Name:      "retry_attempts_total",
		Help:      "Retry attempts made by the resilience layer, by provider.",
	}, []string{"provider"})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "vortex",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state per provider: 0=closed, 1=half-open, 2=open.",
	}, []string{"provider"})

	RowsPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vortex",
		Name:      "rows_persisted_total",
		Help:      "Bars written to storage, by storage kind.",
	}, []string{"storage"})
)
